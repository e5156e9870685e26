package state

var (
	accountPrefix = []byte("account:")
)
