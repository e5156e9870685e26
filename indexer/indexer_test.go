package indexer

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"loanchain/core/events"
)

var (
	testContract = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	testBorrower = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	testToken    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	ix, err := Open("sqlite", filepath.Join(t.TempDir(), "index.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func envelope(block uint64, txByte byte, index int, ev events.Flattener) events.Envelope {
	return events.Envelope{
		BlockNumber: block,
		TxHash:      common.BytesToHash([]byte{txByte}),
		Index:       index,
		Event:       ev.Event(),
	}
}

func created(amount, collateral int64) events.LoanCreated {
	return events.LoanCreated{
		Contract:          testContract,
		User:              testBorrower,
		LoanAmount:        bigInt(amount),
		CollateralAddress: testToken,
		CollateralAmount:  bigInt(collateral),
	}
}

func paid(amount int64, closed bool) events.LoanPaid {
	ev := events.LoanPaid{
		Contract:   testContract,
		User:       testBorrower,
		PaidAmount: bigInt(amount),
		LoanClosed: closed,
	}
	if closed {
		ev.Released = bigInt(90)
		ev.Interest = bigInt(10)
	}
	return ev
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn", nil)
	require.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestLoanLifecycle(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, ix.Handle(ctx, envelope(1, 1, 0, created(1000, 100))))

	open, err := ix.OpenLoans(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, testBorrower.Hex(), open[0].Borrower)
	require.Equal(t, "1000", open[0].Outstanding)
	require.Equal(t, testToken.Hex(), open[0].CollateralToken)

	require.NoError(t, ix.Handle(ctx, envelope(2, 2, 0, paid(400, false))))
	open, err = ix.OpenLoans(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "600", open[0].Outstanding)
	require.Equal(t, "1000", open[0].Principal)

	require.NoError(t, ix.Handle(ctx, envelope(3, 3, 0, paid(600, true))))
	open, err = ix.OpenLoans(ctx)
	require.NoError(t, err)
	require.Empty(t, open)

	history, err := ix.History(ctx, testBorrower, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, events.TypeLoanPaid, history[0].Type)
	require.True(t, history[0].Closed)
	require.Equal(t, "90", history[0].Collateral)
	require.Equal(t, "10", history[0].Interest)
	require.Equal(t, events.TypeLoanCreated, history[2].Type)

	limited, err := ix.History(ctx, testBorrower, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, uint64(3), limited[0].BlockNumber)
}

func TestHandleIsIdempotent(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()
	env := envelope(1, 1, 0, created(1000, 100))

	require.NoError(t, ix.Handle(ctx, env))
	require.NoError(t, ix.Handle(ctx, env))

	history, err := ix.History(ctx, testBorrower, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestHandleIgnoresForeignEvents(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	transfer := events.TokenTransfer{Token: testToken, From: testBorrower, To: testContract, Value: bigInt(5)}
	require.NoError(t, ix.Handle(ctx, envelope(1, 1, 0, transfer)))
	require.NoError(t, ix.Handle(ctx, events.Envelope{}))

	var count int64
	require.NoError(t, ix.db.Model(&LoanEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestPriceAndRateRows(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	rate := events.InterestRateSet{Contract: testContract, Value: bigInt(20)}
	price := events.TokenPriceSet{Contract: testContract, TokenAddress: testToken, Price: bigInt(3)}
	copy(price.TokenName[:], "DAI")
	require.NoError(t, ix.Handle(ctx, envelope(1, 1, 0, rate)))
	require.NoError(t, ix.Handle(ctx, envelope(1, 1, 1, price)))

	var rows []LoanEvent
	require.NoError(t, ix.db.Order("log_index").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.Equal(t, "20", rows[0].Amount)
	require.Equal(t, "DAI", rows[1].TokenName)
	require.Equal(t, testToken.Hex(), rows[1].Token)
}

type feedSource struct {
	feed event.Feed
}

func (f *feedSource) SubscribeEvents(ch chan<- events.Envelope) event.Subscription {
	return f.feed.Subscribe(ch)
}

func TestRunFollowsSource(t *testing.T) {
	ix := newTestIndexer(t)
	src := &feedSource{}
	feed := ix.Subscribe(src)
	// Subscribed before Run starts, so nothing sent now is missed.
	require.Equal(t, 1, src.feed.Send(envelope(1, 1, 0, created(1000, 100))))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Run(ctx, feed) }()

	require.Eventually(t, func() bool {
		open, err := ix.OpenLoans(context.Background())
		return err == nil && len(open) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunRetriesFailedEventsInOrder(t *testing.T) {
	ix := newTestIndexer(t)
	ix.retryMin = 5 * time.Millisecond
	ix.retryMax = 20 * time.Millisecond

	var down atomic.Bool
	down.Store(true)
	var failures atomic.Int32
	require.NoError(t, ix.db.Callback().Create().Before("gorm:create").Register("test:outage", func(db *gorm.DB) {
		if down.Load() {
			failures.Add(1)
			_ = db.AddError(errors.New("database unavailable"))
		}
	}))

	src := &feedSource{}
	feed := ix.Subscribe(src)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Run(ctx, feed) }()

	src.feed.Send(envelope(1, 1, 0, created(1000, 100)))
	src.feed.Send(envelope(2, 2, 0, paid(1000, true)))
	require.Eventually(t, func() bool { return failures.Load() >= 3 }, time.Second, 5*time.Millisecond)

	down.Store(false)
	require.Eventually(t, func() bool {
		var count int64
		return ix.db.Model(&LoanEvent{}).Count(&count).Error == nil && count == 2
	}, 2*time.Second, 10*time.Millisecond)

	open, err := ix.OpenLoans(context.Background())
	require.NoError(t, err)
	require.Empty(t, open)

	cancel()
	require.NoError(t, <-done)
}

func TestNextBackoffDoublesUpToCap(t *testing.T) {
	ix := &Indexer{retryMin: time.Second, retryMax: 5 * time.Second}
	require.Equal(t, time.Second, ix.nextBackoff(0))
	require.Equal(t, 2*time.Second, ix.nextBackoff(time.Second))
	require.Equal(t, 5*time.Second, ix.nextBackoff(4*time.Second))
}

func TestSubDecimal(t *testing.T) {
	out, err := subDecimal("10", "3")
	require.NoError(t, err)
	require.Equal(t, "7", out)

	out, err = subDecimal("3", "10")
	require.NoError(t, err)
	require.Equal(t, "0", out)

	_, err = subDecimal("x", "1")
	require.Error(t, err)
}

func bigInt(v int64) *big.Int { return big.NewInt(v) }
