package core

import (
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"loanchain/core/events"
	"loanchain/core/types"
)

// txRecorder collects the events and logs emitted while a single call
// executes. Contract engines hold a pointer to the chain's recorder for their
// whole lifetime; the chain resets it around every call.
type txRecorder struct {
	events  []events.Event
	logs    []*gethtypes.Log
	discard bool
}

func (r *txRecorder) Emit(ev events.Event) {
	if r.discard || ev == nil {
		return
	}
	r.events = append(r.events, ev)
}

func (r *txRecorder) EmitLog(log *gethtypes.Log) {
	if r.discard || log == nil {
		return
	}
	r.logs = append(r.logs, log)
}

func (r *txRecorder) reset(discard bool) {
	r.events = nil
	r.logs = nil
	r.discard = discard
}

func (r *txRecorder) flattened() []*types.Event {
	out := make([]*types.Event, 0, len(r.events))
	for _, ev := range r.events {
		if flat := events.Flatten(ev); flat != nil {
			out = append(out, flat)
		}
	}
	return out
}
