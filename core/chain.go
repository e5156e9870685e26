package core

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"loanchain/core/events"
	"loanchain/core/state"
	"loanchain/core/types"
	"loanchain/core/vm"
	nativecommon "loanchain/native/common"
	"loanchain/observability"
	telemetry "loanchain/observability/otel"
	"loanchain/storage"
)

var (
	heightKey     = []byte("core/height")
	receiptPrefix = []byte("core/receipt/")
)

// Config holds the chain runtime settings.
type Config struct {
	ChainID uint64
	Pauses  nativecommon.PauseView
	Logger  *slog.Logger
}

// Chain is a single process, Ethereum compatible ledger that mines one block
// per transaction. Every transaction runs against a journaled state snapshot
// and is either committed in one storage batch or reverted entirely.
type Chain struct {
	mu        sync.RWMutex
	// publishMu is taken before mu is released on a successful commit and
	// held until the block's events are published, so subscribers see
	// blocks in height order.
	publishMu sync.Mutex
	db        storage.Database
	state     *state.Manager
	chainID   uint64
	height    uint64
	contracts map[common.Address]vm.Contract
	infos     []ContractInfo
	recorder  *txRecorder
	pauses    nativecommon.PauseView
	bus       *events.Bus
	logger    *slog.Logger
	tracer    trace.Tracer
	txCounter metric.Int64Counter
	metrics   *observability.ChainMetrics
}

// NewChain opens the chain stored in db, restoring deployed contracts.
func NewChain(db storage.Database, cfg Config) (*Chain, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{
		db:        db,
		state:     state.NewManager(db),
		chainID:   cfg.ChainID,
		contracts: make(map[common.Address]vm.Contract),
		recorder:  &txRecorder{},
		pauses:    cfg.Pauses,
		bus:       events.NewBus(),
		logger:    logger.With("component", "chain"),
		tracer:    telemetry.Tracer("loanchain/core"),
		metrics:   observability.Chain(),
	}
	counter, err := telemetry.Meter("loanchain/core").Int64Counter("loanchain.transactions",
		metric.WithDescription("Transactions mined, by receipt status."))
	if err != nil {
		return nil, fmt.Errorf("core: tx counter: %w", err)
	}
	c.txCounter = counter
	raw, err := c.state.GetRaw(heightKey)
	if err != nil {
		return nil, fmt.Errorf("core: load height: %w", err)
	}
	if len(raw) == 8 {
		c.height = binary.BigEndian.Uint64(raw)
	}
	if err := c.loadRegistry(); err != nil {
		return nil, err
	}
	return c, nil
}

// ChainID returns the identifier transactions must be signed for.
func (c *Chain) ChainID() uint64 { return c.chainID }

// Height returns the number of the latest mined block.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// SubscribeEvents registers ch for events of every committed transaction.
func (c *Chain) SubscribeEvents(ch chan<- events.Envelope) event.Subscription {
	return c.bus.Subscribe(ch)
}

// Balance returns the native balance of addr.
func (c *Chain) Balance(addr common.Address) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Balance(addr)
}

// Nonce returns the next nonce expected from addr.
func (c *Chain) Nonce(addr common.Address) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Nonce(addr)
}

// TokenBalance returns holder's balance of the token deployed at tokenAddr.
func (c *Chain) TokenBalance(tokenAddr, holder common.Address) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	engine, err := c.tokenEngineLocked(tokenAddr)
	if err != nil {
		return nil, err
	}
	return engine.BalanceOf(holder)
}

// Allocate credits native currency out of thin air. It is meant for genesis
// and test fixtures only.
func (c *Chain) Allocate(allocs map[common.Address]*big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, amount := range allocs {
		if err := c.state.AddBalance(addr, amount); err != nil {
			c.state.Discard()
			return fmt.Errorf("core: allocate %s: %w", addr.Hex(), err)
		}
	}
	if err := c.state.Commit(); err != nil {
		c.state.Discard()
		return err
	}
	return nil
}

// ApplyTransaction validates, executes and mines tx. Admission failures
// (signature, chain id, nonce, funds) are returned as errors and leave no
// trace. Execution failures are recorded as reverted receipts; the nonce is
// still consumed.
func (c *Chain) ApplyTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "chain.apply_transaction")
	defer span.End()

	receipt, envelopes, err := c.applyLocked(tx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("transaction rejected", "error", err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tx.hash", receipt.TxHash.Hex()),
		attribute.Int64("tx.status", int64(receipt.Status)),
	)

	c.bus.Publish(envelopes...)
	c.publishMu.Unlock()
	c.txCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", receipt.Succeeded())))
	for _, env := range envelopes {
		c.metrics.RecordEvent(env.Event.Type)
	}
	c.metrics.ObserveTransaction(receipt.Succeeded(), receipt.RevertReason, receipt.BlockNumber, time.Since(start))

	attrs := []any{
		"tx", receipt.TxHash.Hex(),
		"from", receipt.From.Hex(),
		"to", receipt.To.Hex(),
		"block", receipt.BlockNumber,
		"status", receipt.Status,
	}
	if receipt.Succeeded() {
		c.logger.Info("transaction applied", attrs...)
	} else {
		c.logger.Info("transaction reverted", append(attrs, "reason", receipt.RevertReason)...)
	}
	return receipt, nil
}

// applyLocked mines tx under the write lock. On success it returns with
// publishMu held; the caller releases it once the envelopes are published.
func (c *Chain) applyLocked(tx *types.Transaction) (*types.Receipt, []events.Envelope, error) {
	if tx == nil {
		return nil, nil, errors.New("core: nil transaction")
	}
	from, err := tx.From()
	if err != nil {
		return nil, nil, err
	}
	if tx.ChainID != c.chainID {
		return nil, nil, fmt.Errorf("%w: have %d, want %d", ErrChainIDMismatch, tx.ChainID, c.chainID)
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, nil, err
	}
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return nil, nil, fmt.Errorf("core: negative value")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if known, err := c.state.GetRaw(receiptKey(hash)); err != nil {
		return nil, nil, err
	} else if len(known) > 0 {
		return nil, nil, ErrKnownTransaction
	}
	nonce, err := c.state.Nonce(from)
	if err != nil {
		return nil, nil, err
	}
	if tx.Nonce < nonce {
		return nil, nil, fmt.Errorf("%w: have %d, want %d", ErrNonceTooLow, tx.Nonce, nonce)
	}
	if tx.Nonce > nonce {
		return nil, nil, fmt.Errorf("%w: have %d, want %d", ErrNonceTooHigh, tx.Nonce, nonce)
	}
	balance, err := c.state.Balance(from)
	if err != nil {
		return nil, nil, err
	}
	if balance.Cmp(value) < 0 {
		return nil, nil, ErrInsufficientFunds
	}

	block := c.height + 1
	receipt := &types.Receipt{
		TxHash:      hash,
		BlockNumber: block,
		From:        from,
		To:          tx.To,
		Value:       new(big.Int).Set(value),
		Logs:        []*gethtypes.Log{},
		Events:      []*types.Event{},
	}

	if err := c.state.SetNonce(from, nonce+1); err != nil {
		c.state.Discard()
		return nil, nil, err
	}
	snapshot := c.state.Snapshot()
	c.recorder.reset(false)

	ret, execErr := c.execute(from, tx.To, value, tx.Data, block)
	if execErr != nil {
		c.state.RevertToSnapshot(snapshot)
		receipt.Status = types.ReceiptStatusFailed
		receipt.RevertReason = vm.RevertReason(execErr)
		var revert *vm.RevertError
		if errors.As(execErr, &revert) {
			receipt.RevertData = revert.Data()
		} else {
			receipt.RevertData = vm.EncodeRevert(receipt.RevertReason)
		}
	} else {
		receipt.Status = types.ReceiptStatusSuccessful
		receipt.ReturnData = ret
		for i, log := range c.recorder.logs {
			log.BlockNumber = block
			log.TxHash = hash
			log.Index = uint(i)
			receipt.Logs = append(receipt.Logs, log)
		}
		receipt.Events = c.recorder.flattened()
	}
	c.recorder.reset(false)

	encoded, err := json.Marshal(receipt)
	if err != nil {
		c.state.Discard()
		return nil, nil, fmt.Errorf("core: encode receipt: %w", err)
	}
	c.state.PutRaw(receiptKey(hash), encoded)
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], block)
	c.state.PutRaw(heightKey, heightBuf[:])
	if err := c.state.Commit(); err != nil {
		c.state.Discard()
		return nil, nil, err
	}
	c.height = block
	c.publishMu.Lock()

	envelopes := make([]events.Envelope, 0, len(receipt.Events))
	for i, ev := range receipt.Events {
		envelopes = append(envelopes, events.Envelope{BlockNumber: block, TxHash: hash, Index: i, Event: ev})
	}
	return receipt, envelopes, nil
}

// execute moves value and runs the target contract. It must be called with
// the write lock held.
func (c *Chain) execute(from, to common.Address, value *big.Int, data []byte, block uint64) ([]byte, error) {
	if value.Sign() > 0 {
		if err := c.state.Transfer(from, to, value); err != nil {
			return nil, err
		}
	}
	contract, ok := c.contracts[to]
	if !ok {
		return nil, nil
	}
	return contract.Run(&vm.CallContext{
		Caller:      from,
		Address:     to,
		Value:       value,
		BlockNumber: block,
	}, data)
}

// Call executes data against the contract at to without committing any state
// change. Reverts are returned as *vm.RevertError.
func (c *Chain) Call(ctx context.Context, from, to common.Address, data []byte) ([]byte, error) {
	_, span := c.tracer.Start(ctx, "chain.call")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	contract, ok := c.contracts[to]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, to.Hex())
	}
	snapshot := c.state.Snapshot()
	c.recorder.reset(true)
	defer func() {
		c.state.RevertToSnapshot(snapshot)
		c.recorder.reset(false)
	}()
	ret, err := contract.Run(&vm.CallContext{
		Caller:      from,
		Address:     to,
		Value:       new(big.Int),
		ReadOnly:    true,
		BlockNumber: c.height,
	}, data)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return ret, nil
}

// Receipt returns the receipt of a mined transaction.
func (c *Chain) Receipt(hash common.Hash) (*types.Receipt, error) {
	c.mu.RLock()
	raw, err := c.state.GetRaw(receiptKey(hash))
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrReceiptNotFound
	}
	receipt := new(types.Receipt)
	if err := json.Unmarshal(raw, receipt); err != nil {
		return nil, fmt.Errorf("core: decode receipt: %w", err)
	}
	return receipt, nil
}

func receiptKey(hash common.Hash) []byte {
	return append(append([]byte(nil), receiptPrefix...), hash.Bytes()...)
}

// SystemCall runs data against to on behalf of from without a signature,
// nonce or receipt, committing on success. It exists for genesis setup and
// emits no events.
func (c *Chain) SystemCall(from, to common.Address, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.state.Snapshot()
	c.recorder.reset(true)
	defer c.recorder.reset(false)
	ret, err := c.execute(from, to, new(big.Int), data, c.height)
	if err != nil {
		c.state.RevertToSnapshot(snapshot)
		c.state.Discard()
		return nil, err
	}
	if err := c.state.Commit(); err != nil {
		c.state.Discard()
		return nil, err
	}
	return ret, nil
}
