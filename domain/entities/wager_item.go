package entities

import (
	"fmt"
	"time"
)

// LegKey identifies a selection within a ticket. A ticket never holds two
// legs with the same key; re-adding one toggles it off instead.
type LegKey struct {
	Ref       MarketRef `json:"ref"`
	SubMarket SubMarket `json:"sub_market"`
	Side      Side      `json:"side"`
}

func (k LegKey) String() string {
	return fmt.Sprintf("%s %s side %d", k.Ref, k.SubMarket, k.Side)
}

// BoughtPoints records a purchased half-point package and the quote the leg
// moved from, so reconciliation can tell option loss from a plain move.
type BoughtPoints struct {
	HalfPoints int32 `json:"half_points"`
	FromLine   Line  `json:"from_line"`
	FromPrice  Price `json:"from_price"`
}

// WagerItem is one leg of a ticket: the selection itself plus the snapshot of
// line and price the bettor is acting on. The snapshot only moves via
// reconciliation or an explicit re-add; registry churn never mutates it
// behind the bettor's back.
type WagerItem struct {
	Ref         MarketRef `json:"ref"`
	SubMarket   SubMarket `json:"sub_market"`
	Side        Side      `json:"side"`
	Description string    `json:"description,omitempty"`

	FinalLine  Line  `json:"final_line"`
	FinalPrice Price `json:"final_price"`

	RiskAmount  *Money `json:"risk_amount,omitempty"`
	ToWinAmount *Money `json:"to_win_amount,omitempty"`

	Available    bool      `json:"available"`
	IsOK         bool      `json:"is_ok"`
	StatusReason string    `json:"status_reason,omitempty"`
	Changed      bool      `json:"changed"`
	ChangedUntil time.Time `json:"changed_until,omitempty"`

	MaxWagerLimit     Money  `json:"max_wager_limit"`
	OrigMaxWagerLimit *Money `json:"orig_max_wager_limit,omitempty"`

	Bought *BoughtPoints `json:"bought,omitempty"`

	// CorrelationID of the last mutation this process issued for the leg;
	// stream events echoing it are our own writes coming back.
	CorrelationID string `json:"correlation_id,omitempty"`

	AddedAt time.Time `json:"added_at"`
}

// NewWagerItem builds a live leg from a resolved quote and the market limit
// in force at selection time.
func NewWagerItem(ref MarketRef, sub SubMarket, side Side, q Quote, limit Money, at time.Time) *WagerItem {
	return &WagerItem{
		Ref:           ref,
		SubMarket:     sub,
		Side:          side,
		FinalLine:     q.Line,
		FinalPrice:    q.Price,
		Available:     true,
		IsOK:          true,
		MaxWagerLimit: limit,
		AddedAt:       at,
	}
}

func (w *WagerItem) Key() LegKey {
	return LegKey{Ref: w.Ref, SubMarket: w.SubMarket, Side: w.Side}
}

func (w *WagerItem) Matches(ref MarketRef, sub SubMarket, side Side) bool {
	return w.Ref == ref && w.SubMarket == sub && w.Side == side
}

func (w *WagerItem) EffectiveQuote() Quote {
	return Quote{Line: w.FinalLine, Price: w.FinalPrice}
}

func (w *WagerItem) HasAmounts() bool {
	return w.RiskAmount != nil && *w.RiskAmount > 0
}

func (w *WagerItem) Risk() Money {
	if w.RiskAmount == nil {
		return 0
	}
	return *w.RiskAmount
}

func (w *WagerItem) ToWin() Money {
	if w.ToWinAmount == nil {
		return 0
	}
	return *w.ToWinAmount
}

// SetRisk records the stake and derives the payout from the leg's price.
func (w *WagerItem) SetRisk(risk Money) {
	win := w.FinalPrice.ToWin(risk)
	w.RiskAmount = &risk
	w.ToWinAmount = &win
}

// SetToWin records the target payout and derives the stake from the leg's
// price.
func (w *WagerItem) SetToWin(win Money) {
	risk := w.FinalPrice.RiskToWin(win)
	w.RiskAmount = &risk
	w.ToWinAmount = &win
}

func (w *WagerItem) ClearAmounts() {
	w.RiskAmount = nil
	w.ToWinAmount = nil
}

// EntryAmount is the number the bettor actually typed: to-win for favorites,
// risk for underdogs. Limits are enforced against this value.
func (w *WagerItem) EntryAmount() Money {
	if w.FinalPrice.Underdog() {
		return w.Risk()
	}
	return w.ToWin()
}

// ExceedsLimit reports whether the entered amount breaks the leg's current
// limit.
func (w *WagerItem) ExceedsLimit() bool {
	return w.HasAmounts() && w.EntryAmount() > w.MaxWagerLimit
}

// MarkChanged flags the leg for bettor review until the given deadline.
func (w *WagerItem) MarkChanged(until time.Time) {
	w.Changed = true
	w.ChangedUntil = until
}

// ClearExpiredChange drops the changed flag once its grace window has passed,
// returning true if it did.
func (w *WagerItem) ClearExpiredChange(now time.Time) bool {
	if !w.Changed || w.ChangedUntil.IsZero() || now.Before(w.ChangedUntil) {
		return false
	}
	w.Changed = false
	w.ChangedUntil = time.Time{}
	return true
}

// AcceptChange acknowledges the flagged move, keeping the refreshed quote.
func (w *WagerItem) AcceptChange() {
	w.Changed = false
	w.ChangedUntil = time.Time{}
}

// Refresh moves the leg's snapshot onto the given quote.
func (w *WagerItem) Refresh(q Quote) {
	w.FinalLine = q.Line
	w.FinalPrice = q.Price
}

// Invalidate marks the leg unplayable and wipes any entered amounts so an
// unavailable leg can never carry money into a post.
func (w *WagerItem) Invalidate(reason string) {
	w.Available = false
	w.IsOK = false
	w.StatusReason = reason
	w.ClearAmounts()
}

// MarkRejected records a per-leg remote failure verbatim.
func (w *WagerItem) MarkRejected(reason string) {
	w.IsOK = false
	w.StatusReason = reason
}

// CapLimit lowers the effective limit, remembering the original so a later
// recompute can restore it. Raising never happens here; RestoreLimit first.
func (w *WagerItem) CapLimit(max Money) {
	if w.OrigMaxWagerLimit == nil {
		orig := w.MaxWagerLimit
		w.OrigMaxWagerLimit = &orig
	}
	if max < w.MaxWagerLimit {
		w.MaxWagerLimit = max
	}
}

// RestoreLimit undoes any chain cap, returning the leg to its market limit.
func (w *WagerItem) RestoreLimit() {
	if w.OrigMaxWagerLimit != nil {
		w.MaxWagerLimit = *w.OrigMaxWagerLimit
		w.OrigMaxWagerLimit = nil
	}
}

func (w *WagerItem) Clone() *WagerItem {
	cp := *w
	if w.RiskAmount != nil {
		v := *w.RiskAmount
		cp.RiskAmount = &v
	}
	if w.ToWinAmount != nil {
		v := *w.ToWinAmount
		cp.ToWinAmount = &v
	}
	if w.OrigMaxWagerLimit != nil {
		v := *w.OrigMaxWagerLimit
		cp.OrigMaxWagerLimit = &v
	}
	if w.Bought != nil {
		b := *w.Bought
		cp.Bought = &b
	}
	return &cp
}
