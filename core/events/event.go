package events

import (
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"loanchain/core/types"
)

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
}

// Flattener is implemented by events that can be rendered as string
// attributes for receipts, RPC responses and indexers.
type Flattener interface {
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// LogEmitter is implemented by emitters that additionally record EVM style
// logs alongside typed events.
type LogEmitter interface {
	Emitter
	EmitLog(*gethtypes.Log)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Flatten renders ev as a flat event, falling back to a bare type when the
// event does not implement Flattener.
func Flatten(ev Event) *types.Event {
	if ev == nil {
		return nil
	}
	if f, ok := ev.(Flattener); ok {
		return f.Event()
	}
	return &types.Event{Type: ev.EventType(), Attributes: map[string]string{}}
}
