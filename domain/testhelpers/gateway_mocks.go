package testhelpers

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"betslip/domain"
	"betslip/domain/entities"
	"betslip/domain/events"
)

// MockWagerGateway is a mock implementation of WagerGateway
type MockWagerGateway struct {
	mock.Mock
}

func (m *MockWagerGateway) AddLeg(ctx context.Context, tc domain.TicketContext, leg domain.LegRequest) (*domain.LegConfirmation, error) {
	args := m.Called(ctx, tc, leg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LegConfirmation), args.Error(1)
}

func (m *MockWagerGateway) RemoveLeg(ctx context.Context, tc domain.TicketContext, leg domain.LegRequest) error {
	args := m.Called(ctx, tc, leg)
	return args.Error(0)
}

func (m *MockWagerGateway) PostTicket(ctx context.Context, tc domain.TicketContext, req domain.PostRequest) (*domain.PostOutcome, error) {
	args := m.Called(ctx, tc, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PostOutcome), args.Error(1)
}

func (m *MockWagerGateway) ParlayInfo(ctx context.Context, name string, picks int) (*domain.ParlayInfo, error) {
	args := m.Called(ctx, name, picks)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ParlayInfo), args.Error(1)
}

func (m *MockWagerGateway) TeaserInfo(ctx context.Context, name string) (*domain.TeaserInfo, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TeaserInfo), args.Error(1)
}

// MockTicketArchive is a mock implementation of TicketArchive
type MockTicketArchive struct {
	mock.Mock
}

func (m *MockTicketArchive) Archive(ctx context.Context, t *entities.PostedTicket) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTicketArchive) GetByTicketNumber(ctx context.Context, ticketNumber int64) (*entities.PostedTicket, error) {
	args := m.Called(ctx, ticketNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PostedTicket), args.Error(1)
}

func (m *MockTicketArchive) ListRecent(ctx context.Context, limit int) ([]*entities.PostedTicket, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PostedTicket), args.Error(1)
}

// MockMarketSnapshotCache is a mock implementation of MarketSnapshotCache
type MockMarketSnapshotCache struct {
	mock.Mock
}

func (m *MockMarketSnapshotCache) Put(ctx context.Context, mk *entities.Market) error {
	args := m.Called(ctx, mk)
	return args.Error(0)
}

func (m *MockMarketSnapshotCache) All(ctx context.Context) ([]*entities.Market, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Market), args.Error(1)
}

func (m *MockMarketSnapshotCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

// RecordingPublisher captures published events for assertion. Safe for
// concurrent use.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *RecordingPublisher) Publish(ctx context.Context, event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// Events returns everything published so far, in order.
func (p *RecordingPublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Event, len(p.events))
	copy(out, p.events)
	return out
}

// OfType filters the captured events by type.
func (p *RecordingPublisher) OfType(t events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the capture buffer.
func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
