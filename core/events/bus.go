package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"loanchain/core/types"
)

// Envelope carries a flattened event together with the transaction that
// produced it.
type Envelope struct {
	BlockNumber uint64
	TxHash      common.Hash
	Index       int
	Event       *types.Event
}

// Bus fans committed events out to any number of subscribers. Sends block
// until every subscriber has received the envelope, so subscribers should
// use buffered channels and drain them promptly.
type Bus struct {
	feed event.Feed
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Publish delivers each envelope in order and returns the number of
// deliveries made.
func (b *Bus) Publish(envs ...Envelope) int {
	sent := 0
	for _, env := range envs {
		sent += b.feed.Send(env)
	}
	return sent
}

// Subscribe registers ch for future envelopes. The subscription must be
// released with Unsubscribe.
func (b *Bus) Subscribe(ch chan<- Envelope) event.Subscription {
	return b.feed.Subscribe(ch)
}
