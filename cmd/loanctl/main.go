package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"loanchain/cmd/internal/passphrase"
	"loanchain/crypto"
	"loanchain/rpc"
)

const (
	defaultRPCURL  = "http://127.0.0.1:8545"
	rpcURLEnv      = "LOAN_RPC_URL"
	rpcTokenEnv    = "LOAN_RPC_TOKEN"
	defaultPassEnv = "LOAN_KEY_PASS"
	requestTimeout = 30 * time.Second
)

// newPassphraseSource is swapped out by tests.
var newPassphraseSource = passphrase.NewSource

type cli struct {
	rpcURL string
	token  string
	stdout io.Writer
	stderr io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{
		rpcURL: envOr(rpcURLEnv, defaultRPCURL),
		token:  os.Getenv(rpcTokenEnv),
		stdout: stdout,
		stderr: stderr,
	}
	global := flag.NewFlagSet("loanctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.StringVar(&c.rpcURL, "rpc", c.rpcURL, "JSON-RPC endpoint of the node")
	global.StringVar(&c.token, "token", c.token, "Bearer token for state-changing calls")
	global.Usage = func() { printUsage(stderr) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 1
	}

	commands := map[string]func([]string) int{
		"generate-key": c.runGenerateKey,
		"address":      c.runAddress,
		"balance":      c.runBalance,
		"loan":         c.runLoan,
		"contract":     c.runContract,
		"fund":         c.runFund,
		"set-rate":     c.runSetRate,
		"set-ratio":    c.runSetRatio,
		"set-price":    c.runSetPrice,
		"create-loan":  c.runCreateLoan,
		"approve":      c.runApprove,
		"pay-loan":     c.runPayLoan,
		"withdraw":     c.runWithdraw,
		"simulate":     c.runSimulate,
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		printUsage(stderr)
		return 1
	}
	return cmd(rest[1:])
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: loanctl [--rpc URL] [--token JWT] <command> [flags]

Commands:
  generate-key --out FILE [--pass-env VAR | --pass-file FILE] [--light-kdf]
  address      FILE
  balance      ADDRESS [--token-address TOKEN]
  loan         ADDRESS
  contract
  fund         --key FILE --amount AMOUNT
  set-rate     --key FILE --rate WEI_PER_SECOND
  set-ratio    --key FILE --bps BPS
  set-price    --key FILE --token-address TOKEN --name NAME --price PRICE
  create-loan  --key FILE --amount AMOUNT --collateral AMOUNT --token-address TOKEN
  approve      --key FILE --token-address TOKEN --amount AMOUNT [--spender ADDRESS]
  pay-loan     --key FILE --amount AMOUNT
  withdraw     --key FILE --amount AMOUNT [--token-address TOKEN]
  simulate     SCENARIO.yaml

Transaction commands also take --pass-env VAR, --pass-file FILE and
--loan ADDRESS. Amounts accept wei or a unit suffix, e.g. "1.5 ether" or "20 gwei".`)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func (c *cli) client() *rpc.Client {
	return rpc.NewClient(c.rpcURL, c.token)
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) fail(err error) int {
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Data != nil {
		fmt.Fprintf(c.stderr, "Error: %s (%v)\n", rpcErr.Message, rpcErr.Data)
		return 1
	}
	fmt.Fprintf(c.stderr, "Error: %v\n", err)
	return 1
}

func (c *cli) printJSON(v interface{}) int {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return c.fail(err)
	}
	return 0
}

func (c *cli) loadKey(path, passEnv, passFile string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--key is required")
	}
	pass, err := newPassphraseSource(passEnv).WithFile(passFile).Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", path, err)
	}
	return key, nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}
