package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"betslip/domain"
	"betslip/domain/entities"
	"betslip/domain/events"
)

// ReconcileReport summarizes what one market update did to the slip.
type ReconcileReport struct {
	Flagged      int
	Invalidated  int
	AutoAccepted int
}

func (r ReconcileReport) Empty() bool {
	return r.Flagged == 0 && r.Invalidated == 0 && r.AutoAccepted == 0
}

// ReconcileMarket replays a merged market snapshot against the slip. Legs the
// market stopped offering are invalidated and withdrawn; repriced legs are
// auto-accepted or flagged for review per the account profile. Updates
// echoing a correlation ID this slip issued are its own writes and skipped.
func (s *TicketService) ReconcileMarket(ctx context.Context, m *entities.Market, u entities.MarketUpdate) ReconcileReport {
	var report ReconcileReport

	pending := events.NewPendingBus(s.publisher)
	var withdrawals []domain.LegRequest
	var wctx domain.TicketContext

	s.mu.Lock()

	if s.ticket.State == entities.TicketStatePosting {
		// The remote is re-validating the slip right now; its verdict wins.
		s.mu.Unlock()
		return report
	}

	building := s.ticket.CanMutate()

	for _, it := range s.ticket.Items {
		if it.Ref != m.Ref {
			continue
		}
		if u.CorrelationID != "" && u.CorrelationID == it.CorrelationID {
			continue
		}
		s.reconcileLegLocked(ctx, pending, it, m, building, &report)
	}

	// Inherited open-play legs are committed: surface moves, never touch the
	// booked numbers.
	for _, it := range s.ticket.OpenItems {
		if it.Ref != m.Ref {
			continue
		}
		if u.CorrelationID != "" && u.CorrelationID == it.CorrelationID {
			continue
		}
		s.reconcileLegLocked(ctx, pending, it, m, false, &report)
	}

	if building && report.Invalidated > 0 {
		for i := len(s.ticket.Items) - 1; i >= 0; i-- {
			it := s.ticket.Items[i]
			if it.Available {
				continue
			}
			s.ticket.RemoveAt(i)
			if s.openPlayParent != nil && s.ticket.OpenSpots < s.openPlaySpots0 {
				s.ticket.OpenSpots++
			}
			req := domain.LegRequest{Ref: it.Ref, SubMarket: it.SubMarket, Side: it.Side, Line: it.FinalLine, Price: it.FinalPrice}
			if it.Bought != nil {
				req.BoughtHalfPoints = it.Bought.HalfPoints
			}
			withdrawals = append(withdrawals, req)
		}
		if len(withdrawals) > 0 {
			if s.ticket.Accumulator() {
				s.ticket.ResetAmounts()
			}
			wctx = s.ticketContextLocked(uuid.New().String())
		}
	}

	if !report.Empty() {
		s.recomputeLocked()
	}
	sessionID := s.sessionID
	s.mu.Unlock()

	pending.Flush(ctx)

	if len(withdrawals) > 0 {
		go s.withdrawInvalidated(wctx, withdrawals)
	}
	if !report.Empty() {
		log.WithFields(log.Fields{
			"sessionID":    sessionID,
			"ref":          m.Ref,
			"flagged":      report.Flagged,
			"invalidated":  report.Invalidated,
			"autoAccepted": report.AutoAccepted,
		}).Info("Reconciled market against ticket")
	}
	return report
}

// reconcileLegLocked applies one market snapshot to one leg. Mutable legs may
// be invalidated, refreshed or flagged; committed legs (posted tickets and
// inherited open-play items) only ever get flagged.
func (s *TicketService) reconcileLegLocked(ctx context.Context, pending *events.PendingBus, it *entities.WagerItem, m *entities.Market, mutable bool, report *ReconcileReport) {
	if m.Held() {
		s.invalidateLegLocked(ctx, pending, it, "market held", mutable, report)
		return
	}
	q, offered := m.QuoteFor(it.SubMarket, it.Side)
	if !offered {
		s.invalidateLegLocked(ctx, pending, it, "selection no longer offered", mutable, report)
		return
	}

	if it.Bought != nil {
		if _, ok := m.BuyPointOptionFor(it.Bought.HalfPoints); !ok {
			// Package withdrawn; the leg falls back to the live base quote.
			old := it.EffectiveQuote()
			it.Bought = nil
			s.flagChangeLocked(ctx, pending, it, entities.ChangeUnfavorable, old, q, mutable, report)
			return
		}
		base := entities.Quote{Line: it.Bought.FromLine, Price: it.Bought.FromPrice}
		if q.Equal(base) {
			return
		}
		// The base market moved under the purchase; the package has to be
		// re-applied against the new numbers.
		dir := ClassifyQuoteChange(it.SubMarket, it.Side, base, q)
		old := it.EffectiveQuote()
		it.Bought = nil
		s.flagChangeLocked(ctx, pending, it, dir, old, q, mutable, report)
		return
	}

	old := it.EffectiveQuote()
	if q.Equal(old) {
		// Quote steady; pick up limit moves unless a chain cap is active.
		if mutable && it.OrigMaxWagerLimit == nil {
			it.MaxWagerLimit = m.EffectiveMax()
		}
		return
	}

	dir := ClassifyQuoteChange(it.SubMarket, it.Side, old, q)
	if dir == entities.ChangeFavorable && s.profile.AutoAcceptBetterOdds && !s.profile.RequireReviewOnChange {
		s.autoAcceptLocked(ctx, pending, it, old, q, mutable, report)
		return
	}
	s.flagChangeLocked(ctx, pending, it, dir, old, q, mutable, report)
}

// invalidateLegLocked takes a leg out of play. Committed legs stand as booked
// and are only flagged for attention.
func (s *TicketService) invalidateLegLocked(ctx context.Context, pending *events.PendingBus, it *entities.WagerItem, reason string, mutable bool, report *ReconcileReport) {
	if !mutable {
		if !it.Changed {
			it.MarkChanged(s.now().Add(s.graceWindow))
			report.Flagged++
			q := it.EffectiveQuote()
			pending.Publish(ctx, events.LegChangedEvent{
				Ref:       it.Ref,
				SubMarket: it.SubMarket,
				Side:      it.Side,
				Direction: entities.ChangeUnfavorable,
				OldQuote:  q,
				NewQuote:  q,
			})
		}
		return
	}
	it.Invalidate(reason)
	report.Invalidated++
	pending.Publish(ctx, events.LegInvalidatedEvent{
		Ref:       it.Ref,
		SubMarket: it.SubMarket,
		Side:      it.Side,
		Reason:    reason,
	})
}

// flagChangeLocked marks a repriced leg for bettor review. Mutable legs move
// onto the live quote and lose their entered amounts; committed legs keep the
// booked numbers.
func (s *TicketService) flagChangeLocked(ctx context.Context, pending *events.PendingBus, it *entities.WagerItem, dir entities.ChangeDirection, old, q entities.Quote, mutable bool, report *ReconcileReport) {
	requiresReentry := false
	if mutable {
		hadAmounts := it.HasAmounts()
		it.Refresh(q)
		if hadAmounts {
			it.ClearAmounts()
			requiresReentry = true
		}
		if s.ticket.Accumulator() && s.ticket.TotalRisk > 0 {
			s.ticket.ResetAmounts()
			requiresReentry = true
		}
	}
	it.MarkChanged(s.now().Add(s.graceWindow))
	report.Flagged++
	pending.Publish(ctx, events.LegChangedEvent{
		Ref:             it.Ref,
		SubMarket:       it.SubMarket,
		Side:            it.Side,
		Direction:       dir,
		OldQuote:        old,
		NewQuote:        q,
		RequiresReentry: requiresReentry,
	})
}

// autoAcceptLocked silently moves a leg onto a better quote. Mutable legs
// re-derive from the bettor's entry; committed legs keep their booked stake
// and collect the improved payout.
func (s *TicketService) autoAcceptLocked(ctx context.Context, pending *events.PendingBus, it *entities.WagerItem, old, q entities.Quote, mutable bool, report *ReconcileReport) {
	hadAmounts := it.HasAmounts()
	entry := it.EntryAmount()

	it.Refresh(q)
	if hadAmounts {
		if !mutable {
			it.SetRisk(it.Risk())
		} else if it.FinalPrice.Underdog() {
			it.SetRisk(entry)
		} else {
			it.SetToWin(entry)
		}
	}
	report.AutoAccepted++
	pending.Publish(ctx, events.LegAutoAcceptedEvent{
		Ref:       it.Ref,
		SubMarket: it.SubMarket,
		Side:      it.Side,
		OldQuote:  old,
		NewQuote:  q,
	})
}

// withdrawInvalidated tells the wagering service to drop legs the market took
// away. Best effort: the remote re-validates everything on post anyway.
func (s *TicketService) withdrawInvalidated(tctx domain.TicketContext, legs []domain.LegRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, leg := range legs {
		if err := s.gateway.RemoveLeg(ctx, tctx, leg); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"ref":       leg.Ref,
				"subMarket": leg.SubMarket,
				"side":      leg.Side,
			}).Warn("Failed to withdraw invalidated leg")
		}
	}
}

// SweepChangedFlags drops review flags whose grace window has passed,
// returning how many cleared. The re-entry requirement itself persists until
// new amounts arrive.
func (s *TicketService) SweepChangedFlags() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, it := range s.ticket.AllItems() {
		if it.ClearExpiredChange(now) {
			n++
		}
	}
	return n
}
