package domain

import (
	"context"

	"betslip/domain/entities"
	"betslip/domain/events"
)

// TicketContext identifies the remote ticket a call belongs to. SessionID is
// stable for the life of one working slip; CorrelationID is fresh per
// mutation and echoed back on the market stream so the engine can recognize
// its own writes.
type TicketContext struct {
	SessionID     string
	AccountID     string
	TicketNumber  *int64
	WagerType     entities.WagerType
	TeaserName    string
	FreePlay      bool
	CorrelationID string
}

// LegRequest describes one selection sent to the wagering service.
type LegRequest struct {
	Ref              entities.MarketRef
	SubMarket        entities.SubMarket
	Side             entities.Side
	Line             entities.Line
	Price            entities.Price
	BoughtHalfPoints int32
}

// LegConfirmation is the remote service's acceptance of a selection,
// including its authoritative quote and limit for the leg.
type LegConfirmation struct {
	Description   string
	Line          entities.Line
	Price         entities.Price
	MaxWagerLimit entities.Money
}

// PostLeg pairs a confirmed selection with its entered amounts.
type PostLeg struct {
	LegRequest
	Risk  entities.Money
	ToWin entities.Money
}

// PostRequest is the full slip submission.
type PostRequest struct {
	Legs       []PostLeg
	OpenSpots  int
	RoundRobin *entities.RoundRobinSelection
	TotalRisk  entities.Money
	TotalToWin entities.Money
	FreePlay   bool
}

// PostLegStatus is the remote verdict for one leg of a posted slip. Message
// is verbatim remote text.
type PostLegStatus struct {
	Index   int
	OK      bool
	Message string
	Line    entities.Line
	Price   entities.Price
}

// PostOutcome is the remote verdict for the whole post. TicketNumber is set
// on success and partial success.
type PostOutcome struct {
	Code         entities.PostResultCode
	TicketNumber *int64
	Message      string
	Legs         []PostLegStatus
}

// ParlayInfo is the remote catalogue's answer for a parlay size: the payout
// ceiling and composition row in force.
type ParlayInfo struct {
	Name      string
	Picks     int
	MaxPayout entities.Money
	Limit     *entities.ParlayLimit
}

// TeaserInfo is the remote catalogue's current spec for a named teaser.
type TeaserInfo struct {
	Spec entities.TeaserSpec
}

// WagerGateway is the remote wagering service, the final authority on every
// mutation. Local checks only pre-filter; any call can still be rejected
// remotely.
type WagerGateway interface {
	// AddLeg registers a selection against the remote ticket and returns
	// its confirmed quote and limit.
	AddLeg(ctx context.Context, tc TicketContext, leg LegRequest) (*LegConfirmation, error)

	// RemoveLeg withdraws a selection from the remote ticket.
	RemoveLeg(ctx context.Context, tc TicketContext, leg LegRequest) error

	// PostTicket submits the whole slip for acceptance.
	PostTicket(ctx context.Context, tc TicketContext, req PostRequest) (*PostOutcome, error)

	// ParlayInfo fetches current parlay reference data for a pick count.
	ParlayInfo(ctx context.Context, name string, picks int) (*ParlayInfo, error)

	// TeaserInfo fetches the current spec for a named teaser.
	TeaserInfo(ctx context.Context, name string) (*TeaserInfo, error)
}

// MarketUpdateHandler consumes one market stream event.
type MarketUpdateHandler func(ctx context.Context, u entities.MarketUpdate) error

// MarketStream is the push feed of market updates. Start blocks, delivering
// events to the handler until the context is cancelled; delivery is
// eventually consistent and the latest snapshot wins.
type MarketStream interface {
	Start(ctx context.Context, handler MarketUpdateHandler) error
}

// MarketSnapshotCache persists registry snapshots so a restart can warm the
// registry without waiting for the feed to replay.
type MarketSnapshotCache interface {
	// Put stores the latest snapshot for the market's ref.
	Put(ctx context.Context, m *entities.Market) error

	// All returns every cached snapshot.
	All(ctx context.Context) ([]*entities.Market, error)

	// Close releases the underlying connection.
	Close() error
}

// TicketArchive persists accepted posts for audit and crash recovery.
type TicketArchive interface {
	// Archive stores a posted ticket with its legs.
	Archive(ctx context.Context, t *entities.PostedTicket) error

	// GetByTicketNumber retrieves an archived post, nil when absent.
	GetByTicketNumber(ctx context.Context, ticketNumber int64) (*entities.PostedTicket, error)

	// ListRecent returns the most recent posts, newest first.
	ListRecent(ctx context.Context, limit int) ([]*entities.PostedTicket, error)
}

// EventPublisher fans domain events out to in-process subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event)
}
