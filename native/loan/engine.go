package loan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"loanchain/core/events"
	"loanchain/core/vm"
	nativecommon "loanchain/native/common"
)

// Kind identifies loan contracts in the contract registry.
const Kind = "loan"

const moduleName = "loan"

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	Balance(addr common.Address) (*big.Int, error)
	Transfer(from, to common.Address, amount *big.Int) error
}

// Engine implements the collateralised loan ledger for one contract address.
// Native currency attached to a call must already have been credited to the
// contract address by the runtime before the engine is invoked.
type Engine struct {
	addr    common.Address
	state   engineState
	tokens  TokenResolver
	emitter events.Emitter
	pauses  nativecommon.PauseView
	guard   nativecommon.ReentrancyGuard
}

// NewEngine constructs an engine serving the contract at addr.
func NewEngine(addr common.Address) *Engine {
	return &Engine{addr: addr, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens configures how collateral token contracts are located.
func (e *Engine) SetTokens(tokens TokenResolver) { e.tokens = tokens }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// Address returns the contract address.
func (e *Engine) Address() common.Address { return e.addr }

func (e *Engine) key(prefix string, parts ...common.Address) []byte {
	out := append([]byte(prefix), e.addr.Bytes()...)
	for _, p := range parts {
		out = append(out, p.Bytes()...)
	}
	return out
}

// Initialize records the owner and the initial interest rate. It is the
// constructor of the contract and may only run once.
func (e *Engine) Initialize(owner common.Address, rate *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	ok, err := e.state.KVGet(e.key("loan/params/"), nil)
	if err != nil {
		return err
	}
	if ok {
		return errInitialized
	}
	if _, err := toWord(rate); err != nil {
		return err
	}
	params := &Params{
		Owner:              owner,
		InterestRate:       cloneOrZero(rate),
		CollateralRatioBps: DefaultCollateralRatioBps,
	}
	return e.putParams(params)
}

// Params returns the contract configuration.
func (e *Engine) Params() (*Params, error) {
	if e.state == nil {
		return nil, errNilState
	}
	params := new(Params)
	ok, err := e.state.KVGet(e.key("loan/params/"), params)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitialized
	}
	if params.InterestRate == nil {
		params.InterestRate = big.NewInt(0)
	}
	return params, nil
}

func (e *Engine) putParams(params *Params) error {
	return e.state.KVPut(e.key("loan/params/"), params)
}

func (e *Engine) onlyOwner(caller common.Address) (*Params, error) {
	params, err := e.Params()
	if err != nil {
		return nil, err
	}
	if caller != params.Owner {
		return nil, ErrNotOwner
	}
	return params, nil
}

// Owner returns the privileged address set at construction.
func (e *Engine) Owner() (common.Address, error) {
	params, err := e.Params()
	if err != nil {
		return common.Address{}, err
	}
	return params.Owner, nil
}

// InterestRate returns the current rate scaled by 1e18.
func (e *Engine) InterestRate() (*big.Int, error) {
	params, err := e.Params()
	if err != nil {
		return nil, err
	}
	return params.InterestRate, nil
}

// CollateralRatioBps returns the minimum collateral value to loan ratio.
func (e *Engine) CollateralRatioBps() (uint64, error) {
	params, err := e.Params()
	if err != nil {
		return 0, err
	}
	return params.CollateralRatioBps, nil
}

// TokenPrice returns the registry entry for token. Unregistered tokens yield
// a zero price.
func (e *Engine) TokenPrice(token common.Address) (*TokenPrice, error) {
	if e.state == nil {
		return nil, errNilState
	}
	entry := new(TokenPrice)
	ok, err := e.state.KVGet(e.key("loan/price/", token), entry)
	if err != nil {
		return nil, err
	}
	if !ok || entry.Price == nil {
		entry.Price = big.NewInt(0)
	}
	return entry, nil
}

// LoanOf returns the position of user. Borrowers without a loan get a zero
// record.
func (e *Engine) LoanOf(user common.Address) (*Loan, error) {
	if e.state == nil {
		return nil, errNilState
	}
	record := new(Loan)
	ok, err := e.state.KVGet(e.key("loan/record/", user), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		record = &Loan{}
	}
	if record.LoanAmount == nil {
		record.LoanAmount = big.NewInt(0)
	}
	if record.CollateralAmount == nil {
		record.CollateralAmount = big.NewInt(0)
	}
	return record, nil
}

// TotalDebt returns the aggregate outstanding debt across all borrowers.
func (e *Engine) TotalDebt() (*big.Int, error) {
	return e.readAmount(e.key("loan/debt/"))
}

// LockedCollateral returns the amount of token backing active loans.
func (e *Engine) LockedCollateral(token common.Address) (*big.Int, error) {
	return e.readAmount(e.key("loan/locked/", token))
}

func (e *Engine) readAmount(key []byte) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	value := new(big.Int)
	ok, err := e.state.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

func (e *Engine) writeAmount(key []byte, value *big.Int) error {
	if value == nil || value.Sign() == 0 {
		return e.state.KVDelete(key)
	}
	return e.state.KVPut(key, value)
}

// Balance returns the native liquidity held by the contract.
func (e *Engine) Balance() (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.Balance(e.addr)
}

// SetInterestRate overwrites the global interest rate.
func (e *Engine) SetInterestRate(caller common.Address, rate *big.Int) error {
	params, err := e.onlyOwner(caller)
	if err != nil {
		return err
	}
	if _, err := toWord(rate); err != nil {
		return err
	}
	params.InterestRate = cloneOrZero(rate)
	if err := e.putParams(params); err != nil {
		return err
	}
	e.emit(events.InterestRateSet{Contract: e.addr, Value: params.InterestRate},
		"InterestRate", params.InterestRate)
	return nil
}

// SetTokenPrice upserts the registry entry for token. A zero price removes the
// token from the set of accepted collateral.
func (e *Engine) SetTokenPrice(caller, token common.Address, name [32]byte, price *big.Int) error {
	if _, err := e.onlyOwner(caller); err != nil {
		return err
	}
	if token == (common.Address{}) {
		return ErrZeroTokenAddress
	}
	if _, err := toWord(price); err != nil {
		return err
	}
	entry := &TokenPrice{Name: name, Price: cloneOrZero(price)}
	if err := e.state.KVPut(e.key("loan/price/", token), entry); err != nil {
		return err
	}
	e.emit(events.TokenPriceSet{Contract: e.addr, TokenAddress: token, TokenName: name, Price: entry.Price},
		"TokenPrice", token, name, entry.Price)
	return nil
}

// SetCollateralRatio changes the minimum collateralisation in basis points.
func (e *Engine) SetCollateralRatio(caller common.Address, bps uint64) error {
	params, err := e.onlyOwner(caller)
	if err != nil {
		return err
	}
	if bps == 0 {
		return ErrInvalidCollateralRatio
	}
	params.CollateralRatioBps = bps
	if err := e.putParams(params); err != nil {
		return err
	}
	e.emit(events.CollateralRatioSet{Contract: e.addr, Bps: bps},
		"CollateralRatio", new(big.Int).SetUint64(bps))
	return nil
}

// CreateLoan opens a loan for caller: collateral is pulled from caller's
// token allowance and loanAmount of native currency is disbursed.
func (e *Engine) CreateLoan(caller common.Address, loanAmount, collateralAmount *big.Int, token common.Address) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	params, err := e.Params()
	if err != nil {
		return err
	}
	if e.tokens == nil {
		return errNilTokens
	}
	if loanAmount == nil || loanAmount.Sign() <= 0 {
		return ErrInvalidLoanAmount
	}
	if collateralAmount == nil {
		collateralAmount = big.NewInt(0)
	}
	price, err := e.TokenPrice(token)
	if err != nil {
		return err
	}
	if !price.Registered() {
		return ErrTokenNotRegistered
	}
	ok, err := CollateralSufficient(collateralAmount, price.Price, loanAmount, params.CollateralRatioBps)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientCollateral
	}
	existing, err := e.LoanOf(caller)
	if err != nil {
		return err
	}
	if existing.Active() {
		return ErrOutstandingDebt
	}
	liquidity, err := e.state.Balance(e.addr)
	if err != nil {
		return err
	}
	if liquidity.Cmp(loanAmount) < 0 {
		return ErrInsufficientLiquidity
	}
	collateral, err := e.tokens.CollateralToken(token)
	if err != nil {
		return err
	}

	// Effects.
	record := &Loan{
		LoanAmount:       new(big.Int).Set(loanAmount),
		CollateralAmount: new(big.Int).Set(collateralAmount),
		CollateralToken:  token,
	}
	if err := e.state.KVPut(e.key("loan/record/", caller), record); err != nil {
		return err
	}
	if err := e.adjust(e.key("loan/debt/"), loanAmount, true); err != nil {
		return err
	}
	if err := e.adjust(e.key("loan/locked/", token), collateralAmount, true); err != nil {
		return err
	}

	// Interactions.
	if collateralAmount.Sign() > 0 {
		if err := collateral.TransferFrom(e.addr, caller, e.addr, collateralAmount); err != nil {
			return err
		}
	}
	if err := e.state.Transfer(e.addr, caller, loanAmount); err != nil {
		return err
	}
	e.emit(events.LoanCreated{
		Contract:          e.addr,
		User:              caller,
		LoanAmount:        record.LoanAmount,
		CollateralAddress: token,
		CollateralAmount:  record.CollateralAmount,
	}, "NewLoan", caller, record.LoanAmount, token, record.CollateralAmount)
	return nil
}

// PayLoan applies value, already credited to the contract, against caller's
// debt. The final payment releases collateral net of interest.
func (e *Engine) PayLoan(caller common.Address, value *big.Int) (*Repayment, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	params, err := e.Params()
	if err != nil {
		return nil, err
	}
	record, err := e.LoanOf(caller)
	if err != nil {
		return nil, err
	}
	if !record.Active() {
		return nil, ErrNoDebt
	}
	if value == nil || value.Sign() <= 0 {
		return nil, ErrInvalidPayment
	}
	if value.Cmp(record.LoanAmount) > 0 {
		return nil, ErrOverpayment
	}
	remaining, err := subWord(record.LoanAmount, value)
	if err != nil {
		return nil, err
	}
	if err := e.adjust(e.key("loan/debt/"), value, false); err != nil {
		return nil, err
	}
	result := &Repayment{Paid: new(big.Int).Set(value), Remaining: remaining}

	if remaining.Sign() > 0 {
		record.LoanAmount = remaining
		if err := e.state.KVPut(e.key("loan/record/", caller), record); err != nil {
			return nil, err
		}
		e.emit(events.LoanPaid{Contract: e.addr, User: caller, PaidAmount: result.Paid},
			"PaidLoan", caller, result.Paid, false)
		return result, nil
	}

	if e.tokens == nil {
		return nil, errNilTokens
	}
	interest, err := Interest(record.CollateralAmount, params.InterestRate)
	if err != nil {
		return nil, err
	}
	// Interest larger than the collateral retains all of it.
	if interest.Cmp(record.CollateralAmount) > 0 {
		interest = new(big.Int).Set(record.CollateralAmount)
	}
	released := new(big.Int).Sub(record.CollateralAmount, interest)
	collateral, err := e.tokens.CollateralToken(record.CollateralToken)
	if err != nil {
		return nil, err
	}

	if err := e.state.KVDelete(e.key("loan/record/", caller)); err != nil {
		return nil, err
	}
	if err := e.adjust(e.key("loan/locked/", record.CollateralToken), record.CollateralAmount, false); err != nil {
		return nil, err
	}
	if released.Sign() > 0 {
		if err := collateral.Transfer(e.addr, caller, released); err != nil {
			return nil, err
		}
	}
	result.Closed = true
	result.Released = released
	result.Interest = interest
	e.emit(events.LoanPaid{
		Contract:   e.addr,
		User:       caller,
		PaidAmount: result.Paid,
		LoanClosed: true,
		Released:   released,
		Interest:   interest,
	}, "PaidLoan", caller, result.Paid, true)
	return result, nil
}

// Receive accepts native liquidity sent to the contract without calldata.
func (e *Engine) Receive(sender common.Address, value *big.Int) error {
	if _, err := e.Params(); err != nil {
		return err
	}
	if value == nil || value.Sign() == 0 {
		return nil
	}
	e.emit(events.LoanFunded{Contract: e.addr, Sender: sender, Amount: new(big.Int).Set(value)},
		"Funded", sender, value)
	return nil
}

// Withdraw sends idle native liquidity to the owner.
func (e *Engine) Withdraw(caller common.Address, amount *big.Int) error {
	if _, err := e.onlyOwner(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidWithdrawal
	}
	balance, err := e.state.Balance(e.addr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrWithdrawExceedsBalance
	}
	if err := e.state.Transfer(e.addr, caller, amount); err != nil {
		return err
	}
	e.emit(events.LoanWithdrawn{Contract: e.addr, To: caller, Amount: new(big.Int).Set(amount)},
		"Withdrawn", caller, common.Address{}, amount)
	return nil
}

// WithdrawTokens sweeps retained interest tokens to the owner. Collateral
// backing active loans cannot be withdrawn.
func (e *Engine) WithdrawTokens(caller, token common.Address, amount *big.Int) error {
	if _, err := e.onlyOwner(caller); err != nil {
		return err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidWithdrawal
	}
	if e.tokens == nil {
		return errNilTokens
	}
	collateral, err := e.tokens.CollateralToken(token)
	if err != nil {
		return err
	}
	held, err := collateral.BalanceOf(e.addr)
	if err != nil {
		return err
	}
	locked, err := e.LockedCollateral(token)
	if err != nil {
		return err
	}
	unlocked := new(big.Int).Sub(held, locked)
	if unlocked.Cmp(amount) < 0 {
		return ErrWithdrawExceedsUnlocked
	}
	if err := collateral.Transfer(e.addr, caller, amount); err != nil {
		return err
	}
	e.emit(events.LoanWithdrawn{Contract: e.addr, To: caller, Token: token, Amount: new(big.Int).Set(amount)},
		"Withdrawn", caller, token, amount)
	return nil
}

func (e *Engine) adjust(key []byte, delta *big.Int, increase bool) error {
	current, err := e.readAmount(key)
	if err != nil {
		return err
	}
	var next *big.Int
	if increase {
		next, err = addWord(current, delta)
	} else {
		next, err = subWord(current, delta)
	}
	if err != nil {
		return err
	}
	return e.writeAmount(key, next)
}

func (e *Engine) emit(ev events.Event, name string, args ...interface{}) {
	e.emitter.Emit(ev)
	logs, ok := e.emitter.(events.LogEmitter)
	if !ok {
		return
	}
	if log, err := vm.EncodeLog(&ABI, e.addr, name, args...); err == nil {
		logs.EmitLog(log)
	}
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
