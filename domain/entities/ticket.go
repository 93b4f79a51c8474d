package entities

import "time"

// TicketState is the ticket lifecycle. Empty and Building accept mutations;
// Posting is the in-flight window of a post; Posted is immutable.
type TicketState string

const (
	TicketStateEmpty    TicketState = "empty"
	TicketStateBuilding TicketState = "building"
	TicketStatePosting  TicketState = "posting"
	TicketStatePosted   TicketState = "posted"
)

// PickRange bounds the selection count for a wager type.
type PickRange struct {
	Min int `yaml:"min" validate:"gte=1"`
	Max int `yaml:"max" validate:"gtefield=Min"`
}

func (r PickRange) Contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

// RoundRobinSelection is a chosen parlay grouping: every GroupSize-subset of
// the legs becomes a sub-parlay, Combos of them in total.
type RoundRobinSelection struct {
	GroupSize int   `json:"group_size"`
	Combos    int64 `json:"combos"`
}

// Identity reports whether the selection is the single full-size parlay.
func (s RoundRobinSelection) Identity() bool {
	return s.Combos == 1
}

// Ticket is the bet slip under construction: the working aggregate the
// manager owns. Callers outside the manager only ever see clones.
type Ticket struct {
	State      TicketState
	WagerType  WagerType
	TeaserName string

	// Items are this ticket's own legs in selection order; OpenItems are
	// confirmed legs inherited from the posted open play being extended.
	Items     []*WagerItem
	OpenItems []*WagerItem

	// OpenSpots are unfilled future slots selected for an open play.
	OpenSpots int

	RoundRobin   *RoundRobinSelection
	AllowedPicks PickRange

	TotalRisk  Money
	TotalToWin Money
	FreePlay   bool

	TicketNumber *int64
	CreatedAt    time.Time
	PostedAt     *time.Time
}

// NewTicket creates an empty slip of the given type.
func NewTicket(t WagerType, now time.Time) *Ticket {
	return &Ticket{
		State:     TicketStateEmpty,
		WagerType: t,
		CreatedAt: now,
	}
}

// PickCount is the number of concrete selections: own legs plus inherited
// open-play legs.
func (t *Ticket) PickCount() int {
	return len(t.Items) + len(t.OpenItems)
}

// SelectionCount additionally counts unfilled open spots; eligibility tables
// key on this number.
func (t *Ticket) SelectionCount() int {
	return t.PickCount() + t.OpenSpots
}

// Find locates a leg among the ticket's own items. Inherited open-play legs
// are confirmed and not addressable for mutation.
func (t *Ticket) Find(ref MarketRef, sub SubMarket, side Side) (*WagerItem, int) {
	for i, it := range t.Items {
		if it.Matches(ref, sub, side) {
			return it, i
		}
	}
	return nil, -1
}

// Add appends the leg and moves an empty slip into Building.
func (t *Ticket) Add(item *WagerItem) {
	t.Items = append(t.Items, item)
	if t.State == TicketStateEmpty {
		t.State = TicketStateBuilding
	}
}

// RemoveAt drops the leg at index i, returning to Empty when nothing is left.
func (t *Ticket) RemoveAt(i int) *WagerItem {
	if i < 0 || i >= len(t.Items) {
		return nil
	}
	removed := t.Items[i]
	t.Items = append(t.Items[:i], t.Items[i+1:]...)
	if t.PickCount() == 0 && t.OpenSpots == 0 {
		t.State = TicketStateEmpty
	}
	return removed
}

// AllItems iterates own legs then inherited ones.
func (t *Ticket) AllItems() []*WagerItem {
	if len(t.OpenItems) == 0 {
		return t.Items
	}
	all := make([]*WagerItem, 0, t.PickCount())
	all = append(all, t.Items...)
	return append(all, t.OpenItems...)
}

// CanMutate reports whether the slip accepts leg or amount changes.
func (t *Ticket) CanMutate() bool {
	return t.State == TicketStateEmpty || t.State == TicketStateBuilding
}

// BeginPosting locks the slip for the remote post. Only a Building slip can
// post.
func (t *Ticket) BeginPosting() bool {
	if t.State != TicketStateBuilding {
		return false
	}
	t.State = TicketStatePosting
	return true
}

// CompletePost records the accepted ticket number and freezes the slip.
func (t *Ticket) CompletePost(ticketNumber int64, at time.Time) {
	t.TicketNumber = &ticketNumber
	t.State = TicketStatePosted
	t.PostedAt = &at
}

// FailPost returns a rejected slip to Building so it can be fixed and
// retried.
func (t *Ticket) FailPost() {
	if t.State == TicketStatePosting {
		t.State = TicketStateBuilding
	}
}

// ResetAmounts wipes every entered amount; accumulator slips do this whenever
// the leg set changes because the shared stake no longer prices.
func (t *Ticket) ResetAmounts() {
	for _, it := range t.Items {
		it.ClearAmounts()
	}
	t.TotalRisk = 0
	t.TotalToWin = 0
}

// Accumulator reports whether legs share a combined stake or payout.
func (t *Ticket) Accumulator() bool {
	return t.WagerType.Accumulator()
}

// LegsWithAmounts counts own legs carrying a stake.
func (t *Ticket) LegsWithAmounts() int {
	n := 0
	for _, it := range t.Items {
		if it.HasAmounts() {
			n++
		}
	}
	return n
}

func (t *Ticket) Clone() *Ticket {
	cp := *t
	cp.Items = make([]*WagerItem, len(t.Items))
	for i, it := range t.Items {
		cp.Items[i] = it.Clone()
	}
	cp.OpenItems = make([]*WagerItem, len(t.OpenItems))
	for i, it := range t.OpenItems {
		cp.OpenItems[i] = it.Clone()
	}
	if t.RoundRobin != nil {
		rr := *t.RoundRobin
		cp.RoundRobin = &rr
	}
	if t.TicketNumber != nil {
		n := *t.TicketNumber
		cp.TicketNumber = &n
	}
	if t.PostedAt != nil {
		at := *t.PostedAt
		cp.PostedAt = &at
	}
	return &cp
}

// PostedTicket is the immutable record of an accepted post, the shape the
// archive persists and crash recovery reads back.
type PostedTicket struct {
	TicketNumber int64
	AccountID    string
	WagerType    WagerType
	TeaserName   string
	Legs         []*WagerItem
	OpenSpots    int
	RoundRobin   *RoundRobinSelection
	TotalRisk    Money
	TotalToWin   Money
	FreePlay     bool
	PostedAt     time.Time
	Result       PostResultCode
}

// PostResultCode is the remote service's verdict on a post.
type PostResultCode string

const (
	PostResultSuccess  PostResultCode = "success"
	PostResultPartial  PostResultCode = "partial"
	PostResultRejected PostResultCode = "rejected"
)
