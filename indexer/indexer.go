// Package indexer persists loan contract events into a SQL database so the
// loan book and its history can be queried without replaying the chain.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"loanchain/core/events"
	"loanchain/observability"
)

var (
	ErrUnsupportedDriver = errors.New("indexer: unsupported driver")
	errNilDB             = errors.New("indexer: database not configured")
)

const (
	defaultQueue    = 128
	minRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff = 30 * time.Second
)

// Source is the event feed the indexer follows.
type Source interface {
	SubscribeEvents(ch chan<- events.Envelope) event.Subscription
}

// Indexer writes loan events and maintains per-borrower positions.
type Indexer struct {
	db       *gorm.DB
	logger   *slog.Logger
	metrics  *observability.LoanMetrics
	retryMin time.Duration
	retryMax time.Duration
}

// Feed is a subscription registered with Subscribe and consumed by Run.
type Feed struct {
	ch  chan events.Envelope
	sub event.Subscription
}

// Open connects to the configured database and migrates the schema.
func Open(driver, dsn string, logger *slog.Logger) (*Indexer, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return New(db, logger)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errNilDB
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	ix := &Indexer{
		db:       db,
		logger:   logger,
		metrics:  observability.Loans(),
		retryMin: minRetryBackoff,
		retryMax: maxRetryBackoff,
	}
	var open int64
	if err := db.Model(&Position{}).Where("open = ?", true).Count(&open).Error; err != nil {
		return nil, fmt.Errorf("indexer: count open loans: %w", err)
	}
	ix.metrics.SetOpen(int(open))
	return ix, nil
}

// Close releases the underlying connection pool.
func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Subscribe registers with src immediately. Call it before the chain starts
// accepting transactions so no event is published ahead of the indexer.
func (ix *Indexer) Subscribe(src Source) *Feed {
	ch := make(chan events.Envelope, defaultQueue)
	return &Feed{ch: ch, sub: src.SubscribeEvents(ch)}
}

// Run consumes feed until ctx is cancelled or the subscription fails. Events
// are persisted strictly in delivery order. An event that fails to persist
// stays at the head of an in-memory backlog and is retried with exponential
// backoff; later events queue behind it instead of blocking the chain.
func (ix *Indexer) Run(ctx context.Context, feed *Feed) error {
	defer feed.sub.Unsubscribe()
	var (
		backlog []events.Envelope
		delay   time.Duration
		timer   *time.Timer
		retry   <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		for len(backlog) > 0 && retry == nil {
			env := backlog[0]
			err := ix.Handle(ctx, env)
			if err == nil {
				backlog[0] = events.Envelope{}
				backlog = backlog[1:]
				delay = 0
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			delay = ix.nextBackoff(delay)
			ix.logger.Error("index event failed",
				"tx", env.TxHash.Hex(),
				"type", env.Event.Type,
				"backlog", len(backlog),
				"retry_in", delay.String(),
				"error", err)
			timer = time.NewTimer(delay)
			retry = timer.C
		}
		select {
		case <-ctx.Done():
			return nil
		case err := <-feed.sub.Err():
			return err
		case env := <-feed.ch:
			backlog = append(backlog, env)
		case <-retry:
			retry = nil
		}
	}
}

func (ix *Indexer) nextBackoff(prev time.Duration) time.Duration {
	if prev <= 0 {
		return ix.retryMin
	}
	next := prev * 2
	if next > ix.retryMax {
		next = ix.retryMax
	}
	return next
}

// Handle persists a single envelope. Events outside the loan domain are
// ignored; replays of an already indexed event are no-ops.
func (ix *Indexer) Handle(ctx context.Context, env events.Envelope) error {
	if env.Event == nil {
		return nil
	}
	switch env.Event.Type {
	case events.TypeLoanCreated, events.TypeLoanPaid, events.TypeLoanInterestRate, events.TypeLoanTokenPrice:
	default:
		return nil
	}
	row := toRow(env)
	err := ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		switch row.Type {
		case events.TypeLoanCreated:
			return ix.openPosition(tx, row)
		case events.TypeLoanPaid:
			return ix.applyPayment(tx, row)
		}
		return nil
	})
	ix.metrics.RecordIndexed(env.BlockNumber, err)
	return err
}

func toRow(env events.Envelope) LoanEvent {
	attrs := env.Event.Attributes
	row := LoanEvent{
		BlockNumber: env.BlockNumber,
		TxHash:      env.TxHash.Hex(),
		LogIndex:    env.Index,
		Type:        env.Event.Type,
		Contract:    attrs["contract"],
		Borrower:    attrs["user"],
	}
	switch env.Event.Type {
	case events.TypeLoanCreated:
		row.Amount = attrs["loanAmount"]
		row.Token = attrs["collateralAddress"]
		row.Collateral = attrs["collateralAmount"]
	case events.TypeLoanPaid:
		row.Amount = attrs["paidAmount"]
		row.Closed = attrs["loanClosed"] == "true"
		row.Collateral = attrs["collateralReleased"]
		row.Interest = attrs["interest"]
	case events.TypeLoanInterestRate:
		row.Amount = attrs["value"]
	case events.TypeLoanTokenPrice:
		row.Token = attrs["tokenAddress"]
		row.TokenName = attrs["tokenName"]
		row.Amount = attrs["price"]
	}
	return row
}

func (ix *Indexer) openPosition(tx *gorm.DB, row LoanEvent) error {
	pos := Position{
		Borrower:         row.Borrower,
		Contract:         row.Contract,
		CollateralToken:  row.Token,
		Principal:        row.Amount,
		Outstanding:      row.Amount,
		CollateralAmount: row.Collateral,
		Open:             true,
		OpenedAt:         row.BlockNumber,
	}
	err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&pos).Error
	if err == nil {
		ix.metrics.RecordOpened()
	}
	return err
}

func (ix *Indexer) applyPayment(tx *gorm.DB, row LoanEvent) error {
	var pos Position
	err := tx.Where("borrower = ?", row.Borrower).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ix.logger.Warn("payment for unknown position", "borrower", row.Borrower, "tx", row.TxHash)
		return nil
	}
	if err != nil {
		return err
	}
	if row.Closed {
		pos.Outstanding = "0"
		pos.Open = false
		pos.ClosedAt = row.BlockNumber
	} else {
		remaining, err := subDecimal(pos.Outstanding, row.Amount)
		if err != nil {
			return err
		}
		pos.Outstanding = remaining
	}
	if err := tx.Save(&pos).Error; err != nil {
		return err
	}
	if row.Closed {
		ix.metrics.RecordClosed()
	}
	return nil
}

// History returns the most recent events involving user, newest first.
func (ix *Indexer) History(ctx context.Context, user common.Address, limit int) ([]LoanEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []LoanEvent
	err := ix.db.WithContext(ctx).
		Where("borrower = ?", user.Hex()).
		Order("block_number DESC").
		Order("log_index DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: history: %w", err)
	}
	return rows, nil
}

// OpenLoans lists every position that has not been fully repaid.
func (ix *Indexer) OpenLoans(ctx context.Context) ([]Position, error) {
	var rows []Position
	if err := ix.db.WithContext(ctx).Where("open = ?", true).Order("opened_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("indexer: open loans: %w", err)
	}
	return rows, nil
}

func subDecimal(a, b string) (string, error) {
	x, ok := new(big.Int).SetString(a, 10)
	if !ok {
		return "", fmt.Errorf("indexer: malformed amount %q", a)
	}
	y, ok := new(big.Int).SetString(b, 10)
	if !ok {
		return "", fmt.Errorf("indexer: malformed amount %q", b)
	}
	x.Sub(x, y)
	if x.Sign() < 0 {
		x.SetInt64(0)
	}
	return x.String(), nil
}
