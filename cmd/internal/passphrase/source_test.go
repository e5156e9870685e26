package passphrase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("LOAN_TEST_PASS", "s3cret")
	src := NewSource("LOAN_TEST_PASS")
	value, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, "s3cret", value)

	t.Setenv("LOAN_TEST_PASS", "changed")
	value, err = src.Get()
	require.NoError(t, err)
	require.Equal(t, "s3cret", value)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("LOAN_TEST_PASS", "  ")
	_, err := NewSource("LOAN_TEST_PASS").Get()
	require.ErrorContains(t, err, "LOAN_TEST_PASS is set but empty")
}

func TestStatic(t *testing.T) {
	value, err := Static("fixed").Get()
	require.NoError(t, err)
	require.Equal(t, "fixed", value)
}

func TestSourceReadsFileFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pass.txt")
	require.NoError(t, os.WriteFile(path, []byte("from-file\r\nignored\n"), 0o600))
	t.Setenv("LOAN_TEST_PASS", "from-env")

	value, err := NewSource("LOAN_TEST_PASS").WithFile(path).Get()
	require.NoError(t, err)
	require.Equal(t, "from-file", value)
}

func TestSourceRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pass.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))
	_, err := NewSource("").WithFile(path).Get()
	require.ErrorContains(t, err, "is empty")

	_, err = NewSource("").WithFile(filepath.Join(t.TempDir(), "missing")).Get()
	require.Error(t, err)
}
