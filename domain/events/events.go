package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"betslip/domain/entities"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeMarketUpdated   EventType = "market_updated"
	EventTypeLegChanged      EventType = "leg_changed"
	EventTypeLegInvalidated  EventType = "leg_invalidated"
	EventTypeLegAutoAccepted EventType = "leg_auto_accepted"
	EventTypeTicketPosted    EventType = "ticket_posted"
	EventTypeTicketReset     EventType = "ticket_reset"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// MarketUpdatedEvent fires after a stream event merges into the registry.
type MarketUpdatedEvent struct {
	Ref entities.MarketRef
	Seq int64
}

func (e MarketUpdatedEvent) Type() EventType {
	return EventTypeMarketUpdated
}

// LegChangedEvent fires when reconciliation flags a leg for bettor review.
// RequiresReentry reports that entered amounts were cleared.
type LegChangedEvent struct {
	Ref             entities.MarketRef
	SubMarket       entities.SubMarket
	Side            entities.Side
	Direction       entities.ChangeDirection
	OldQuote        entities.Quote
	NewQuote        entities.Quote
	RequiresReentry bool
}

func (e LegChangedEvent) Type() EventType {
	return EventTypeLegChanged
}

// LegInvalidatedEvent fires when a leg's market goes held or stops offering
// the selection and the leg is dropped from the slip.
type LegInvalidatedEvent struct {
	Ref       entities.MarketRef
	SubMarket entities.SubMarket
	Side      entities.Side
	Reason    string
}

func (e LegInvalidatedEvent) Type() EventType {
	return EventTypeLegInvalidated
}

// LegAutoAcceptedEvent fires when a favorable move lands on a posted leg
// whose account accepts better odds without review.
type LegAutoAcceptedEvent struct {
	Ref       entities.MarketRef
	SubMarket entities.SubMarket
	Side      entities.Side
	OldQuote  entities.Quote
	NewQuote  entities.Quote
}

func (e LegAutoAcceptedEvent) Type() EventType {
	return EventTypeLegAutoAccepted
}

// TicketPostedEvent fires after the remote accepts a post, in full or in
// part.
type TicketPostedEvent struct {
	TicketNumber int64
	WagerType    entities.WagerType
	Result       entities.PostResultCode
	LegsAccepted int
	LegsRejected int
	TotalRisk    entities.Money
	TotalToWin   entities.Money
}

func (e TicketPostedEvent) Type() EventType {
	return EventTypeTicketPosted
}

// TicketResetEvent fires when the working slip is emptied or replaced.
type TicketResetEvent struct {
	Reason    string
	WagerType entities.WagerType
}

func (e TicketResetEvent) Type() EventType {
	return EventTypeTicketReset
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make([]Handler, 0)
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Publish sends an event to all registered handlers
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	// Call handlers asynchronously to avoid blocking
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Publisher is the publishing half of the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// PendingBus stashes events raised while a lock is held and flushes them to
// the real bus afterwards, so handlers never observe a slip mid-mutation.
type PendingBus struct {
	real    Publisher
	pending []Event
}

func NewPendingBus(real Publisher) *PendingBus {
	return &PendingBus{real: real}
}

func (b *PendingBus) Publish(ctx context.Context, e Event) {
	b.pending = append(b.pending, e)
}

// Flush publishes every stashed event in order and clears the queue.
func (b *PendingBus) Flush(ctx context.Context) {
	for _, ev := range b.pending {
		b.real.Publish(ctx, ev)
	}
	b.pending = nil
}

// Discard drops stashed events without publishing.
func (b *PendingBus) Discard() {
	b.pending = nil
}
