package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// positional splits leading non-flag arguments from the flags that follow,
// so "balance 0xabc --token-address 0xdef" parses.
func positional(args []string) ([]string, []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return args[:i], args[i:]
		}
	}
	return args, nil
}

func parseAddress(label, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", label, value)
	}
	return common.HexToAddress(value), nil
}

func parseOptionalAddress(label, value string) (common.Address, bool, error) {
	if strings.TrimSpace(value) == "" {
		return common.Address{}, false, nil
	}
	addr, err := parseAddress(label, value)
	return addr, err == nil, err
}

func (c *cli) runBalance(args []string) int {
	pos, rest := positional(args)
	fs := c.flagSet("balance")
	tokenFlag := fs.String("token-address", "", "ERC-20 token to query instead of the native balance")
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	if len(pos) != 1 {
		return c.fail(errors.New("usage: loanctl balance ADDRESS [--token-address TOKEN]"))
	}
	addr, err := parseAddress("account", pos[0])
	if err != nil {
		return c.fail(err)
	}
	tokenAddr, hasToken, err := parseOptionalAddress("token", *tokenFlag)
	if err != nil {
		return c.fail(err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	var balance *big.Int
	if hasToken {
		balance, err = c.client().TokenBalance(ctx, tokenAddr, addr)
	} else {
		balance, err = c.client().Balance(ctx, addr)
	}
	if err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.stdout, "%s\n", balance.String())
	return 0
}

func (c *cli) runLoan(args []string) int {
	if len(args) != 1 {
		return c.fail(errors.New("usage: loanctl loan ADDRESS"))
	}
	addr, err := parseAddress("borrower", args[0])
	if err != nil {
		return c.fail(err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	result, err := c.client().Loan(ctx, addr)
	if err != nil {
		return c.fail(err)
	}
	return c.printJSON(result)
}

func (c *cli) runContract(args []string) int {
	if len(args) != 0 {
		return c.fail(errors.New("usage: loanctl contract"))
	}
	ctx, cancel := requestContext()
	defer cancel()
	result, err := c.client().Contract(ctx)
	if err != nil {
		return c.fail(err)
	}
	return c.printJSON(result)
}

// txFlags are shared by every state-changing command.
type txFlags struct {
	key      *string
	passEnv  *string
	passFile *string
	loan     *string
}

func addTxFlags(fs *flag.FlagSet) txFlags {
	return txFlags{
		key:      fs.String("key", "", "Keystore file of the sending account"),
		passEnv:  fs.String("pass-env", defaultPassEnv, "Environment variable holding the keystore passphrase"),
		passFile: fs.String("pass-file", "", "File whose first line is the keystore passphrase"),
		loan:     fs.String("loan", "", "Loan contract address (defaults to the node's primary loan contract)"),
	}
}

func (c *cli) loanAddress(ctx context.Context, override string) (common.Address, error) {
	addr, ok, err := parseOptionalAddress("loan", override)
	if err != nil || ok {
		return addr, err
	}
	info, err := c.client().Contract(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve loan contract: %w", err)
	}
	return info.Address, nil
}

// transact loads the signing key, builds the call and prints the receipt.
// A reverted receipt exits non-zero.
func (c *cli) transact(flags txFlags, build func(ctx context.Context, loanAddr common.Address) (call, error)) int {
	key, err := c.loadKey(*flags.key, *flags.passEnv, *flags.passFile)
	if err != nil {
		return c.fail(err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	loanAddr, err := c.loanAddress(ctx, *flags.loan)
	if err != nil {
		return c.fail(err)
	}
	tx, err := build(ctx, loanAddr)
	if err != nil {
		return c.fail(err)
	}
	receipt, err := send(ctx, c.client(), key, tx)
	if err != nil {
		return c.fail(err)
	}
	if code := c.printJSON(receipt); code != 0 {
		return code
	}
	if !receipt.Succeeded() {
		fmt.Fprintf(c.stderr, "transaction reverted: %s\n", receipt.RevertReason)
		return 1
	}
	return 0
}

func requireAmount(label, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("--%s is required", label)
	}
	amount, err := ParseAmount(value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", label, err)
	}
	return amount, nil
}

func (c *cli) runFund(args []string) int {
	fs := c.flagSet("fund")
	flags := addTxFlags(fs)
	amountFlag := fs.String("amount", "", "Amount of native currency to deposit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	amount, err := requireAmount("amount", *amountFlag)
	if err != nil {
		return c.fail(err)
	}
	return c.transact(flags, func(_ context.Context, loanAddr common.Address) (call, error) {
		return fundCall(loanAddr, amount), nil
	})
}

func (c *cli) runSetRate(args []string) int {
	fs := c.flagSet("set-rate")
	flags := addTxFlags(fs)
	rateFlag := fs.String("rate", "", "Interest per second per wei, scaled by 1e18")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rate, err := requireAmount("rate", *rateFlag)
	if err != nil {
		return c.fail(err)
	}
	return c.transact(flags, func(_ context.Context, loanAddr common.Address) (call, error) {
		return setRateCall(loanAddr, rate)
	})
}

func (c *cli) runSetRatio(args []string) int {
	fs := c.flagSet("set-ratio")
	flags := addTxFlags(fs)
	bps := fs.Uint64("bps", 0, "Collateral ratio in basis points")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *bps == 0 {
		return c.fail(errors.New("--bps is required"))
	}
	return c.transact(flags, func(_ context.Context, loanAddr common.Address) (call, error) {
		return setCollateralRatioCall(loanAddr, new(big.Int).SetUint64(*bps))
	})
}

func (c *cli) runSetPrice(args []string) int {
	fs := c.flagSet("set-price")
	flags := addTxFlags(fs)
	tokenFlag := fs.String("token-address", "", "Collateral token address")
	name := fs.String("name", "", "Display name stored with the price (at most 32 bytes)")
	priceFlag := fs.String("price", "", "Wei of native currency per token unit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	tokenAddr, err := parseAddress("token", *tokenFlag)
	if err != nil {
		return c.fail(err)
	}
	if len(*name) > 32 {
		return c.fail(errors.New("--name must be at most 32 bytes"))
	}
	price, err := requireAmount("price", *priceFlag)
	if err != nil {
		return c.fail(err)
	}
	return c.transact(flags, func(_ context.Context, loanAddr common.Address) (call, error) {
		return setPriceCall(loanAddr, tokenAddr, *name, price)
	})
}

func (c *cli) runCreateLoan(args []string) int {
	fs := c.flagSet("create-loan")
	flags := addTxFlags(fs)
	amountFlag := fs.String("amount", "", "Principal to borrow")
	collateralFlag := fs.String("collateral", "", "Collateral token amount to lock")
	tokenFlag := fs.String("token-address", "", "Collateral token address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	amount, err := requireAmount("amount", *amountFlag)
	if err != nil {
		return c.fail(err)
	}
	collateral, err := requireAmount("collateral", *collateralFlag)
	if err != nil {
		return c.fail(err)
	}
	tokenAddr, err := parseAddress("token", *tokenFlag)
	if err != nil {
		return c.fail(err)
	}
	return c.transact(flags, func(_ context.Context, loanAddr common.Address) (call, error) {
		return createLoanCall(loanAddr, tokenAddr, amount, collateral)
	})
}

func (c *cli) runApprove(args []string) int {
	fs := c.flagSet("approve")
	flags := addTxFlags(fs)
	tokenFlag := fs.String("token-address", "", "Token to approve")
	amountFlag := fs.String("amount", "", "Allowance to grant")
	spenderFlag := fs.String("spender", "", "Spender (defaults to the loan contract)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	tokenAddr, err := parseAddress("token", *tokenFlag)
	if err != nil {
		return c.fail(err)
	}
	amount, err := requireAmount("amount", *amountFlag)
	if err != nil {
		return c.fail(err)
	}
	spender, hasSpender, err := parseOptionalAddress("spender", *spenderFlag)
	if err != nil {
		return c.fail(err)
	}
	return c.transact(flags, func(_ context.Context, loanAddr common.Address) (call, error) {
		if !hasSpender {
			spender = loanAddr
		}
		return approveCall(tokenAddr, spender, amount)
	})
}

func (c *cli) runPayLoan(args []string) int {
	fs := c.flagSet("pay-loan")
	flags := addTxFlags(fs)
	amountFlag := fs.String("amount", "", "Native currency sent with the repayment")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	amount, err := requireAmount("amount", *amountFlag)
	if err != nil {
		return c.fail(err)
	}
	return c.transact(flags, func(_ context.Context, loanAddr common.Address) (call, error) {
		return payLoanCall(loanAddr, amount)
	})
}

func (c *cli) runWithdraw(args []string) int {
	fs := c.flagSet("withdraw")
	flags := addTxFlags(fs)
	amountFlag := fs.String("amount", "", "Amount to withdraw to the owner")
	tokenFlag := fs.String("token-address", "", "Withdraw this ERC-20 token instead of native currency")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	amount, err := requireAmount("amount", *amountFlag)
	if err != nil {
		return c.fail(err)
	}
	tokenAddr, hasToken, err := parseOptionalAddress("token", *tokenFlag)
	if err != nil {
		return c.fail(err)
	}
	return c.transact(flags, func(_ context.Context, loanAddr common.Address) (call, error) {
		if hasToken {
			return withdrawTokensCall(loanAddr, tokenAddr, amount)
		}
		return withdrawCall(loanAddr, amount)
	})
}
