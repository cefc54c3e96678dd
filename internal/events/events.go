// Package events fans out book/settlement events to subscribers (the
// websocket feed). Publishing never blocks: a slow subscriber drops
// events rather than stalling a settlement.
package events

import (
	"sync"
	"time"

	"github.com/gridwatt/energytrade/internal/domain"
)

type Type string

const (
	TypeProposalCreated   Type = "proposal_created"
	TypeProposalCancelled Type = "proposal_cancelled"
	TypeTradeSettled      Type = "trade_settled"
)

type Event struct {
	Type        Type                `json:"type"`
	At          time.Time           `json:"at"`
	Proposal    *domain.Proposal    `json:"proposal,omitempty"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
}

type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a buffered event channel and a cancel func.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers e to every subscriber, dropping on full buffers.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
