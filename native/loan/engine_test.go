package loan

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"loanchain/core/events"
	nativecommon "loanchain/native/common"
)

var (
	contractAddr = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	owner        = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	borrower     = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	stranger     = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	daiAddr      = common.HexToAddress("0x00000000000000000000000000000000000000d0")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

type fixture struct {
	engine  *Engine
	state   *mockEngineState
	dai     *mockToken
	emitter *recordingEmitter
}

// newFixture deploys a loan contract with interest rate 2e13, registers DAI
// at price 1, funds the contract with 10 ether and gives the borrower 1000
// DAI approved to the contract.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := newMockEngineState()
	dai := newMockToken()
	emitter := &recordingEmitter{}

	engine := NewEngine(contractAddr)
	engine.SetState(state)
	engine.SetTokens(mockResolver{daiAddr: dai})
	engine.SetEmitter(emitter)
	require.NoError(t, engine.Initialize(owner, big.NewInt(20_000_000_000_000)))
	require.NoError(t, engine.SetTokenPrice(owner, daiAddr, TokenName("DAI"), big.NewInt(1)))

	state.credit(contractAddr, ether(10))
	dai.mint(borrower, ether(1000))
	dai.approve(borrower, contractAddr, ether(1000))
	return &fixture{engine: engine, state: state, dai: dai, emitter: emitter}
}

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.engine.Initialize(owner, big.NewInt(1)), errInitialized)

	got, err := f.engine.Owner()
	require.NoError(t, err)
	require.Equal(t, owner, got)

	bps, err := f.engine.CollateralRatioBps()
	require.NoError(t, err)
	require.Equal(t, uint64(DefaultCollateralRatioBps), bps)
}

func TestSetInterestRateOwnerOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetInterestRate(owner, big.NewInt(300)))
	rate, err := f.engine.InterestRate()
	require.NoError(t, err)
	require.Equal(t, big.NewInt(300), rate)

	ev, ok := f.emitter.last().(events.InterestRateSet)
	require.True(t, ok)
	require.Equal(t, big.NewInt(300), ev.Value)

	require.ErrorIs(t, f.engine.SetInterestRate(stranger, big.NewInt(1)), ErrNotOwner)
	rate, err = f.engine.InterestRate()
	require.NoError(t, err)
	require.Equal(t, big.NewInt(300), rate)
}

func TestSetTokenPrice(t *testing.T) {
	f := newFixture(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	require.NoError(t, f.engine.SetTokenPrice(owner, other, TokenName("USDC"), big.NewInt(7)))

	entry, err := f.engine.TokenPrice(other)
	require.NoError(t, err)
	require.True(t, entry.Registered())
	require.Equal(t, big.NewInt(7), entry.Price)
	require.Equal(t, TokenName("USDC"), entry.Name)

	ev, ok := f.emitter.last().(events.TokenPriceSet)
	require.True(t, ok)
	require.Equal(t, other, ev.TokenAddress)

	require.ErrorIs(t, f.engine.SetTokenPrice(stranger, other, TokenName("X"), big.NewInt(1)), ErrNotOwner)
	require.ErrorIs(t, f.engine.SetTokenPrice(owner, common.Address{}, TokenName("X"), big.NewInt(1)), ErrZeroTokenAddress)

	unknown, err := f.engine.TokenPrice(stranger)
	require.NoError(t, err)
	require.False(t, unknown.Registered())
}

func TestCreateLoanSuccess(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.CreateLoan(borrower, ether(1), ether(500), daiAddr))

	record, err := f.engine.LoanOf(borrower)
	require.NoError(t, err)
	require.Equal(t, ether(1), record.LoanAmount)
	require.Equal(t, ether(500), record.CollateralAmount)
	require.Equal(t, daiAddr, record.CollateralToken)

	held, _ := f.dai.BalanceOf(contractAddr)
	require.Equal(t, ether(500), held)
	cash, _ := f.state.Balance(borrower)
	require.Equal(t, ether(1), cash)
	liquidity, _ := f.engine.Balance()
	require.Equal(t, ether(9), liquidity)

	debt, err := f.engine.TotalDebt()
	require.NoError(t, err)
	require.Equal(t, ether(1), debt)
	locked, err := f.engine.LockedCollateral(daiAddr)
	require.NoError(t, err)
	require.Equal(t, ether(500), locked)

	ev, ok := f.emitter.last().(events.LoanCreated)
	require.True(t, ok)
	require.Equal(t, borrower, ev.User)
	require.Equal(t, daiAddr, ev.CollateralAddress)
	require.NotEmpty(t, f.emitter.logs)
	require.Equal(t, ABI.Events["NewLoan"].ID, f.emitter.logs[len(f.emitter.logs)-1].Topics[0])
}

func TestCreateLoanChecksInOrder(t *testing.T) {
	unregistered := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	cases := []struct {
		name    string
		setup   func(f *fixture)
		loan    *big.Int
		coll    *big.Int
		token   common.Address
		wantErr error
	}{
		{name: "zero loan", loan: big.NewInt(0), coll: ether(1), token: daiAddr, wantErr: ErrInvalidLoanAmount},
		{name: "unregistered token", loan: ether(1), coll: ether(500), token: unregistered, wantErr: ErrTokenNotRegistered},
		{name: "zero address token", loan: ether(1), coll: ether(500), token: common.Address{}, wantErr: ErrTokenNotRegistered},
		{name: "undercollateralised", loan: ether(1), coll: big.NewInt(1), token: daiAddr, wantErr: ErrInsufficientCollateral},
		{
			name: "outstanding debt",
			setup: func(f *fixture) {
				require.NoError(t, f.engine.CreateLoan(borrower, ether(1), ether(100), daiAddr))
			},
			loan: ether(1), coll: ether(100), token: daiAddr, wantErr: ErrOutstandingDebt,
		},
		{name: "insufficient liquidity", loan: ether(11), coll: ether(500), token: daiAddr, wantErr: ErrInsufficientLiquidity},
		{
			name: "insufficient allowance",
			setup: func(f *fixture) {
				f.dai.approve(borrower, contractAddr, big.NewInt(1))
			},
			loan: ether(1), coll: ether(500), token: daiAddr,
			wantErr: errors.New("ERC20: transfer amount exceeds allowance"),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.setup != nil {
				tc.setup(f)
			}
			err := f.engine.CreateLoan(borrower, tc.loan, tc.coll, tc.token)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr.Error())
		})
	}
}

func TestCreateLoanRespectsCollateralRatio(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetCollateralRatio(owner, 15_000))
	require.ErrorIs(t, f.engine.CreateLoan(borrower, ether(2), ether(2), daiAddr), ErrInsufficientCollateral)
	require.NoError(t, f.engine.CreateLoan(borrower, ether(2), ether(3), daiAddr))

	require.ErrorIs(t, f.engine.SetCollateralRatio(owner, 0), ErrInvalidCollateralRatio)
	require.ErrorIs(t, f.engine.SetCollateralRatio(stranger, 1), ErrNotOwner)
}

func TestPayLoanPartialThenFinal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.CreateLoan(borrower, ether(1), ether(500), daiAddr))

	half := new(big.Int).Div(ether(1), big.NewInt(2))
	f.state.credit(contractAddr, half)
	rep, err := f.engine.PayLoan(borrower, half)
	require.NoError(t, err)
	require.False(t, rep.Closed)
	require.Equal(t, half, rep.Remaining)

	record, err := f.engine.LoanOf(borrower)
	require.NoError(t, err)
	require.Equal(t, half, record.LoanAmount)
	tokens, _ := f.dai.BalanceOf(borrower)
	require.Equal(t, ether(500), tokens)
	paid, ok := f.emitter.last().(events.LoanPaid)
	require.True(t, ok)
	require.False(t, paid.LoanClosed)

	f.state.credit(contractAddr, half)
	rep, err = f.engine.PayLoan(borrower, half)
	require.NoError(t, err)
	require.True(t, rep.Closed)

	// 500 × 2e13 / 1e18 = 0.01 ether withheld.
	interest := new(big.Int).Div(ether(1), big.NewInt(100))
	require.Equal(t, interest, rep.Interest)
	tokens, _ = f.dai.BalanceOf(borrower)
	require.Equal(t, new(big.Int).Sub(ether(1000), interest), tokens)
	held, _ := f.dai.BalanceOf(contractAddr)
	require.Equal(t, interest, held)

	record, err = f.engine.LoanOf(borrower)
	require.NoError(t, err)
	require.False(t, record.Active())
	debt, _ := f.engine.TotalDebt()
	require.Zero(t, debt.Sign())
	locked, _ := f.engine.LockedCollateral(daiAddr)
	require.Zero(t, locked.Sign())

	paid, ok = f.emitter.last().(events.LoanPaid)
	require.True(t, ok)
	require.True(t, paid.LoanClosed)
}

func TestPayLoanRejections(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.PayLoan(borrower, ether(1))
	require.ErrorIs(t, err, ErrNoDebt)

	require.NoError(t, f.engine.CreateLoan(borrower, ether(1), ether(500), daiAddr))
	_, err = f.engine.PayLoan(borrower, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidPayment)
	_, err = f.engine.PayLoan(borrower, ether(2))
	require.ErrorIs(t, err, ErrOverpayment)

	record, err := f.engine.LoanOf(borrower)
	require.NoError(t, err)
	require.Equal(t, ether(1), record.LoanAmount)
}

func TestBorrowerCanReopenAfterRepayment(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		require.NoError(t, f.engine.CreateLoan(borrower, ether(1), ether(100), daiAddr))
		f.state.credit(contractAddr, ether(1))
		rep, err := f.engine.PayLoan(borrower, ether(1))
		require.NoError(t, err)
		require.True(t, rep.Closed)
	}
}

func TestInterestAboveCollateralRetainsEverything(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.CreateLoan(borrower, ether(1), ether(2), daiAddr))
	require.NoError(t, f.engine.SetInterestRate(owner, ether(2)))
	f.state.credit(contractAddr, ether(1))
	rep, err := f.engine.PayLoan(borrower, ether(1))
	require.NoError(t, err)
	require.Zero(t, rep.Released.Sign())
	require.Equal(t, ether(2), rep.Interest)
}

func TestReentrantTokenIsRejected(t *testing.T) {
	f := newFixture(t)
	var reentryErr error
	f.dai.onTransfer = func() error {
		_, reentryErr = f.engine.PayLoan(borrower, big.NewInt(1))
		return nil
	}
	require.NoError(t, f.engine.CreateLoan(borrower, ether(1), ether(500), daiAddr))
	require.ErrorIs(t, reentryErr, nativecommon.ErrReentrantCall)

	f.dai.onTransfer = func() error {
		return f.engine.CreateLoan(borrower, ether(1), ether(500), daiAddr)
	}
	f.state.credit(contractAddr, ether(1))
	_, err := f.engine.PayLoan(borrower, ether(1))
	require.ErrorIs(t, err, nativecommon.ErrReentrantCall)
	require.False(t, f.engine.guard.Entered())
}

func TestLoanGuardBlocksMutation(t *testing.T) {
	f := newFixture(t)
	f.engine.SetPauses(stubPauseView{modules: map[string]bool{"loan": true}})

	if err := f.engine.CreateLoan(borrower, ether(1), ether(500), daiAddr); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if _, err := f.engine.PayLoan(borrower, ether(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if bal, _ := f.engine.Balance(); bal.Cmp(ether(10)) != 0 {
		t.Fatalf("expected contract liquidity to remain 10 ether, got %s", bal)
	}
	// Admin operations stay available while paused.
	if err := f.engine.SetInterestRate(owner, big.NewInt(1)); err != nil {
		t.Fatalf("set interest rate while paused: %v", err)
	}
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.engine.Withdraw(stranger, ether(1)), ErrNotOwner)
	require.ErrorIs(t, f.engine.Withdraw(owner, ether(11)), ErrWithdrawExceedsBalance)
	require.ErrorIs(t, f.engine.Withdraw(owner, big.NewInt(0)), ErrInvalidWithdrawal)
	require.NoError(t, f.engine.Withdraw(owner, ether(4)))

	bal, _ := f.state.Balance(owner)
	require.Equal(t, ether(4), bal)
	ev, ok := f.emitter.last().(events.LoanWithdrawn)
	require.True(t, ok)
	require.Equal(t, owner, ev.To)
}

func TestWithdrawTokensKeepsCollateralLocked(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.CreateLoan(borrower, ether(1), ether(500), daiAddr))
	require.ErrorIs(t, f.engine.WithdrawTokens(owner, daiAddr, big.NewInt(1)), ErrWithdrawExceedsUnlocked)

	f.state.credit(contractAddr, ether(1))
	rep, err := f.engine.PayLoan(borrower, ether(1))
	require.NoError(t, err)

	require.ErrorIs(t, f.engine.WithdrawTokens(stranger, daiAddr, rep.Interest), ErrNotOwner)
	require.NoError(t, f.engine.WithdrawTokens(owner, daiAddr, rep.Interest))
	got, _ := f.dai.BalanceOf(owner)
	require.Equal(t, rep.Interest, got)
}

func TestReceiveEmitsFunded(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Receive(stranger, ether(3)))
	ev, ok := f.emitter.last().(events.LoanFunded)
	require.True(t, ok)
	require.Equal(t, stranger, ev.Sender)

	before := len(f.emitter.events)
	require.NoError(t, f.engine.Receive(stranger, big.NewInt(0)))
	require.Len(t, f.emitter.events, before)
}
