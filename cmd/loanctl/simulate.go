package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"loanchain/core"
	"loanchain/core/genesis"
	"loanchain/core/types"
	"loanchain/crypto"
	"loanchain/native/loan"
	"loanchain/storage"
)

// Scenario is a scripted run against a throwaway in-memory chain. Actors are
// named; their keys are derived with crypto.DevKey.
type Scenario struct {
	ChainID  uint64            `yaml:"chainId"`
	Accounts map[string]string `yaml:"accounts"`
	Tokens   []ScenarioToken   `yaml:"tokens"`
	Loan     ScenarioLoan      `yaml:"loan"`
	Steps    []ScenarioStep    `yaml:"steps"`
}

type ScenarioToken struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
	Holder   string `yaml:"holder"`
	Supply   string `yaml:"supply"`
}

type ScenarioLoan struct {
	Owner              string            `yaml:"owner"`
	InterestRate       string            `yaml:"interestRate"`
	CollateralRatioBps uint64            `yaml:"collateralRatioBps"`
	Funding            string            `yaml:"funding"`
	Prices             map[string]string `yaml:"prices"`
}

// ScenarioStep is one signed transaction. Expect is empty or "success" for a
// committed receipt, "revert" for any revert, or "revert: <reason>".
type ScenarioStep struct {
	Actor      string `yaml:"actor"`
	Action     string `yaml:"action"`
	Amount     string `yaml:"amount"`
	Collateral string `yaml:"collateral"`
	Token      string `yaml:"token"`
	To         string `yaml:"to"`
	Name       string `yaml:"name"`
	Price      string `yaml:"price"`
	Rate       string `yaml:"rate"`
	Bps        uint64 `yaml:"bps"`
	Expect     string `yaml:"expect"`
}

// StepResult is printed for every executed step.
type StepResult struct {
	Step         int            `json:"step"`
	Actor        string         `json:"actor"`
	Action       string         `json:"action"`
	TxHash       common.Hash    `json:"txHash"`
	Block        uint64         `json:"block"`
	Status       uint64         `json:"status"`
	RevertReason string         `json:"revertReason,omitempty"`
	Events       []*types.Event `json:"events,omitempty"`
}

// ActorState is the closing snapshot of one actor.
type ActorState struct {
	Address common.Address      `json:"address"`
	Balance string              `json:"balance"`
	Tokens  map[string]string   `json:"tokens,omitempty"`
	Loan    *ScenarioLoanReport `json:"loan,omitempty"`
}

type ScenarioLoanReport struct {
	LoanAmount       string `json:"loanAmount"`
	CollateralAmount string `json:"collateralAmount"`
	CollateralToken  string `json:"collateralToken"`
}

// SimulationReport is the output of a scenario run.
type SimulationReport struct {
	Loan   common.Address        `json:"loan"`
	Tokens map[string]string     `json:"tokens"`
	Steps  []StepResult          `json:"steps"`
	Actors map[string]ActorState `json:"actors"`
}

// ErrExpectationFailed marks a step whose receipt did not match its expect
// clause.
var ErrExpectationFailed = errors.New("scenario expectation failed")

func (c *cli) runSimulate(args []string) int {
	if len(args) != 1 {
		return c.fail(errors.New("usage: loanctl simulate SCENARIO.yaml"))
	}
	scenario, err := LoadScenario(args[0])
	if err != nil {
		return c.fail(err)
	}
	report, runErr := Simulate(context.Background(), scenario, nil)
	if report != nil {
		if code := c.printJSON(report); code != 0 {
			return code
		}
	}
	if runErr != nil {
		return c.fail(runErr)
	}
	return 0
}

// LoadScenario reads a YAML scenario file. Unknown keys are rejected.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	scenario := new(Scenario)
	if err := dec.Decode(scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if scenario.ChainID == 0 {
		scenario.ChainID = 1337
	}
	if strings.TrimSpace(scenario.Loan.Owner) == "" {
		return nil, fmt.Errorf("scenario %s: loan.owner is required", path)
	}
	return scenario, nil
}

// chainSubmitter sends transactions straight into an in-process chain.
type chainSubmitter struct {
	chain *core.Chain
}

func (s chainSubmitter) ChainID(context.Context) (uint64, error) { return s.chain.ChainID(), nil }

func (s chainSubmitter) Nonce(_ context.Context, addr common.Address) (uint64, error) {
	return s.chain.Nonce(addr)
}

func (s chainSubmitter) SendTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return s.chain.ApplyTransaction(ctx, tx)
}

type simulation struct {
	chain  *core.Chain
	loan   common.Address
	tokens map[string]common.Address
}

func actorAddress(name string) common.Address {
	return crypto.DevKey(strings.ToLower(strings.TrimSpace(name))).Address()
}

// genesisDocument renders the scenario preamble as a genesis document so it
// goes through the same validation as a node's genesis file.
func genesisDocument(s *Scenario) ([]byte, error) {
	doc := genesis.Spec{
		ChainID: s.ChainID,
		Alloc:   make(map[string]string, len(s.Accounts)),
	}
	for name, balance := range s.Accounts {
		amount, err := ParseAmount(balance)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", name, err)
		}
		doc.Alloc[actorAddress(name).Hex()] = amount.String()
	}
	for _, tok := range s.Tokens {
		supply, err := ParseAmount(tok.Supply)
		if err != nil {
			return nil, fmt.Errorf("token %s supply: %w", tok.Symbol, err)
		}
		decimals := tok.Decimals
		if decimals == 0 {
			decimals = 18
		}
		doc.Tokens = append(doc.Tokens, genesis.TokenSpec{
			Symbol:   tok.Symbol,
			Name:     tok.Name,
			Decimals: decimals,
			Holder:   actorAddress(tok.Holder).Hex(),
			Supply:   supply.String(),
		})
	}
	rate, err := ParseAmount(defaultString(s.Loan.InterestRate, "0"))
	if err != nil {
		return nil, fmt.Errorf("loan interestRate: %w", err)
	}
	loanSpec := &genesis.LoanSpec{
		Owner:              actorAddress(s.Loan.Owner).Hex(),
		InterestRate:       rate.String(),
		CollateralRatioBps: s.Loan.CollateralRatioBps,
	}
	if s.Loan.Funding != "" {
		funding, err := ParseAmount(s.Loan.Funding)
		if err != nil {
			return nil, fmt.Errorf("loan funding: %w", err)
		}
		loanSpec.Funding = funding.String()
	}
	symbols := make([]string, 0, len(s.Loan.Prices))
	for symbol := range s.Loan.Prices {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		price, err := ParseAmount(s.Loan.Prices[symbol])
		if err != nil {
			return nil, fmt.Errorf("price %s: %w", symbol, err)
		}
		loanSpec.Prices = append(loanSpec.Prices, genesis.PriceSpec{Token: symbol, Price: price.String()})
	}
	doc.Loan = loanSpec
	return json.Marshal(doc)
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// Simulate runs s on a fresh in-memory chain. The report is returned even
// when a step fails so callers can show how far the run got.
func Simulate(ctx context.Context, s *Scenario, logger *slog.Logger) (*SimulationReport, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	raw, err := genesisDocument(s)
	if err != nil {
		return nil, err
	}
	spec, err := genesis.Parse(raw)
	if err != nil {
		return nil, err
	}
	chain, err := core.NewChain(storage.NewMemDB(), core.Config{ChainID: s.ChainID, Logger: logger})
	if err != nil {
		return nil, err
	}
	result, err := genesis.Apply(chain, spec)
	if err != nil {
		return nil, err
	}
	sim := &simulation{chain: chain, loan: result.Loan, tokens: result.Tokens}
	report := &SimulationReport{
		Loan:   result.Loan,
		Tokens: make(map[string]string, len(result.Tokens)),
		Actors: make(map[string]ActorState),
	}
	for symbol, addr := range result.Tokens {
		report.Tokens[symbol] = addr.Hex()
	}

	var runErr error
	for i, step := range s.Steps {
		res, err := sim.apply(ctx, step)
		if err != nil {
			runErr = fmt.Errorf("step %d (%s %s): %w", i+1, step.Actor, step.Action, err)
			break
		}
		res.Step = i + 1
		report.Steps = append(report.Steps, *res)
		if err := checkExpectation(step.Expect, res); err != nil {
			runErr = fmt.Errorf("step %d (%s %s): %w", i+1, step.Actor, step.Action, err)
			break
		}
	}
	if err := sim.snapshotActors(ctx, s, report); err != nil && runErr == nil {
		runErr = err
	}
	return report, runErr
}

func checkExpectation(expect string, res *StepResult) error {
	expect = strings.TrimSpace(expect)
	switch {
	case expect == "" || strings.EqualFold(expect, "success"):
		if res.Status != types.ReceiptStatusSuccessful {
			return fmt.Errorf("%w: reverted with %q", ErrExpectationFailed, res.RevertReason)
		}
	case strings.EqualFold(expect, "revert"):
		if res.Status == types.ReceiptStatusSuccessful {
			return fmt.Errorf("%w: expected a revert", ErrExpectationFailed)
		}
	case strings.HasPrefix(strings.ToLower(expect), "revert:"):
		want := strings.TrimSpace(expect[len("revert:"):])
		if res.Status == types.ReceiptStatusSuccessful || res.RevertReason != want {
			return fmt.Errorf("%w: expected revert %q, got status %d reason %q", ErrExpectationFailed, want, res.Status, res.RevertReason)
		}
	default:
		return fmt.Errorf("unknown expect clause %q", expect)
	}
	return nil
}

func (sim *simulation) token(symbol string) (common.Address, error) {
	if common.IsHexAddress(symbol) {
		return common.HexToAddress(symbol), nil
	}
	addr, ok := sim.tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return common.Address{}, fmt.Errorf("unknown token %q", symbol)
	}
	return addr, nil
}

func (sim *simulation) build(step ScenarioStep) (call, error) {
	amount := func(label, value string) (*big.Int, error) {
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("%s is required", label)
		}
		return ParseAmount(value)
	}
	switch strings.ToLower(step.Action) {
	case "fund":
		value, err := amount("amount", step.Amount)
		if err != nil {
			return call{}, err
		}
		return fundCall(sim.loan, value), nil
	case "set-rate":
		rate, err := amount("rate", step.Rate)
		if err != nil {
			return call{}, err
		}
		return setRateCall(sim.loan, rate)
	case "set-ratio":
		return setCollateralRatioCall(sim.loan, new(big.Int).SetUint64(step.Bps))
	case "set-price":
		tokenAddr, err := sim.token(step.Token)
		if err != nil {
			return call{}, err
		}
		price, err := amount("price", step.Price)
		if err != nil {
			return call{}, err
		}
		name := step.Name
		if name == "" && !common.IsHexAddress(step.Token) {
			name = strings.ToUpper(step.Token)
		}
		return setPriceCall(sim.loan, tokenAddr, name, price)
	case "approve":
		tokenAddr, err := sim.token(step.Token)
		if err != nil {
			return call{}, err
		}
		value, err := amount("amount", step.Amount)
		if err != nil {
			return call{}, err
		}
		spender := sim.loan
		if step.To != "" {
			spender = actorAddress(step.To)
		}
		return approveCall(tokenAddr, spender, value)
	case "transfer":
		tokenAddr, err := sim.token(step.Token)
		if err != nil {
			return call{}, err
		}
		value, err := amount("amount", step.Amount)
		if err != nil {
			return call{}, err
		}
		if step.To == "" {
			return call{}, errors.New("to is required")
		}
		return transferCall(tokenAddr, actorAddress(step.To), value)
	case "create-loan":
		tokenAddr, err := sim.token(step.Token)
		if err != nil {
			return call{}, err
		}
		value, err := ParseAmount(defaultString(step.Amount, "0"))
		if err != nil {
			return call{}, err
		}
		collateral, err := ParseAmount(defaultString(step.Collateral, "0"))
		if err != nil {
			return call{}, err
		}
		return createLoanCall(sim.loan, tokenAddr, value, collateral)
	case "pay-loan":
		value, err := ParseAmount(defaultString(step.Amount, "0"))
		if err != nil {
			return call{}, err
		}
		return payLoanCall(sim.loan, value)
	case "withdraw":
		value, err := amount("amount", step.Amount)
		if err != nil {
			return call{}, err
		}
		if step.Token != "" {
			tokenAddr, err := sim.token(step.Token)
			if err != nil {
				return call{}, err
			}
			return withdrawTokensCall(sim.loan, tokenAddr, value)
		}
		return withdrawCall(sim.loan, value)
	default:
		return call{}, fmt.Errorf("unknown action %q", step.Action)
	}
}

func (sim *simulation) apply(ctx context.Context, step ScenarioStep) (*StepResult, error) {
	if strings.TrimSpace(step.Actor) == "" {
		return nil, errors.New("actor is required")
	}
	tx, err := sim.build(step)
	if err != nil {
		return nil, err
	}
	key := crypto.DevKey(strings.ToLower(strings.TrimSpace(step.Actor)))
	receipt, err := send(ctx, chainSubmitter{chain: sim.chain}, key, tx)
	if err != nil {
		return nil, err
	}
	return &StepResult{
		Actor:        step.Actor,
		Action:       step.Action,
		TxHash:       receipt.TxHash,
		Block:        receipt.BlockNumber,
		Status:       receipt.Status,
		RevertReason: receipt.RevertReason,
		Events:       receipt.Events,
	}, nil
}

func (sim *simulation) snapshotActors(ctx context.Context, s *Scenario, report *SimulationReport) error {
	names := make(map[string]struct{})
	for name := range s.Accounts {
		names[name] = struct{}{}
	}
	for _, step := range s.Steps {
		if step.Actor != "" {
			names[step.Actor] = struct{}{}
		}
	}
	for name := range names {
		addr := actorAddress(name)
		balance, err := sim.chain.Balance(addr)
		if err != nil {
			return err
		}
		state := ActorState{Address: addr, Balance: balance.String()}
		for symbol, tokenAddr := range sim.tokens {
			held, err := sim.chain.TokenBalance(tokenAddr, addr)
			if err != nil {
				return err
			}
			if held.Sign() > 0 {
				if state.Tokens == nil {
					state.Tokens = make(map[string]string)
				}
				state.Tokens[symbol] = held.String()
			}
		}
		record, err := sim.loanOf(ctx, addr)
		if err != nil {
			return err
		}
		if record.Active() {
			state.Loan = &ScenarioLoanReport{
				LoanAmount:       record.LoanAmount.String(),
				CollateralAmount: record.CollateralAmount.String(),
				CollateralToken:  record.CollateralToken.Hex(),
			}
		}
		report.Actors[name] = state
	}
	return nil
}

func (sim *simulation) loanOf(ctx context.Context, user common.Address) (*loan.Loan, error) {
	data, err := loan.ABI.Pack("loans", user)
	if err != nil {
		return nil, err
	}
	out, err := sim.chain.Call(ctx, user, sim.loan, data)
	if err != nil {
		return nil, err
	}
	values, err := loan.ABI.Unpack("loans", out)
	if err != nil {
		return nil, err
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("loans: unexpected output arity %d", len(values))
	}
	amount, _ := values[0].(*big.Int)
	collateral, _ := values[1].(*big.Int)
	tokenAddr, _ := values[2].(common.Address)
	return &loan.Loan{LoanAmount: amount, CollateralAmount: collateral, CollateralToken: tokenAddr}, nil
}
