package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"betslip/domain"
	"betslip/domain/entities"
	"betslip/domain/events"
)

// TicketService owns one bettor's working slip. All state changes funnel
// through it: leg and amount mutations, posting, and reconciliation against
// market updates. Remote calls happen outside the lock with at most one in
// flight per slip; a slip replaced while a call is out discards the result
// when it returns.
type TicketService struct {
	mu sync.Mutex

	ticket    *entities.Ticket
	profile   entities.AccountProfile
	sessionID string

	// generation counts slip incarnations. A mutation that relocks to find a
	// different generation was abandoned by a reset and must not apply.
	generation uint64
	inFlight   bool

	// openPlayParent is the posted open play an extension slip fills, with
	// the spot count the extension started from.
	openPlayParent *int64
	openPlaySpots0 int

	registry  *MarketRegistry
	limits    *LimitEngine
	gateway   domain.WagerGateway
	archive   domain.TicketArchive
	publisher domain.EventPublisher

	// Remote reference data for the current selection, refreshed after each
	// confirmed mutation. Nil falls back to the local tables.
	parlayInfo *domain.ParlayInfo
	teaserInfo *domain.TeaserInfo

	graceWindow time.Duration
	now         func() time.Time
}

// NewTicketService creates a slip manager for one bettor session, starting
// with an empty straight ticket.
func NewTicketService(
	registry *MarketRegistry,
	limits *LimitEngine,
	gateway domain.WagerGateway,
	archive domain.TicketArchive,
	publisher domain.EventPublisher,
	profile entities.AccountProfile,
	graceWindow time.Duration,
) *TicketService {
	s := &TicketService{
		registry:    registry,
		limits:      limits,
		gateway:     gateway,
		archive:     archive,
		publisher:   publisher,
		profile:     profile,
		graceWindow: graceWindow,
		now:         time.Now,
	}
	s.installTicketLocked(entities.WagerTypeStraight)
	return s
}

// Snapshot returns a copy of the working slip for display.
func (s *TicketService) Snapshot() *entities.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticket.Clone()
}

// Profile returns the account settings this slip operates under.
func (s *TicketService) Profile() entities.AccountProfile {
	return s.profile
}

// SessionID identifies the current slip incarnation in logs and remote calls.
func (s *TicketService) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// AddLeg resolves the selection against the registry, pre-filters local
// limits, registers it with the wagering service and installs the confirmed
// leg. Re-adding a selection already on the slip toggles it off; adding to an
// already posted slip transparently starts a fresh one first.
func (s *TicketService) AddLeg(ctx context.Context, ref entities.MarketRef, sub entities.SubMarket, side entities.Side) (*entities.WagerItem, error) {
	const op = "add leg"

	s.mu.Lock()

	if s.ticket.State != entities.TicketStatePosted {
		if existing, _ := s.ticket.Find(ref, sub, side); existing != nil {
			s.mu.Unlock()
			err := s.RemoveLeg(ctx, ref, sub, side)
			if err != nil && !errors.Is(err, domain.ErrLegNotFound) {
				return nil, err
			}
			return nil, nil
		}
	}

	pending := events.NewPendingBus(s.publisher)
	if s.ticket.State == entities.TicketStatePosted {
		s.resetLocked(ctx, pending, s.ticket.WagerType, "posted ticket superseded")
	}

	if err := s.beginMutationLocked(op); err != nil {
		s.mu.Unlock()
		pending.Flush(ctx)
		return nil, err
	}
	gen := s.generation

	item, tctx, req, err := s.prepareAddLocked(op, ref, sub, side)
	if err != nil {
		s.inFlight = false
		s.mu.Unlock()
		pending.Flush(ctx)
		return nil, err
	}

	filling := s.openPlayParent != nil && s.ticket.OpenSpots > 0
	wagerType := s.ticket.WagerType
	teaserName := s.ticket.TeaserName
	nAfter := s.ticket.SelectionCount()
	if !filling {
		nAfter++
	}

	s.mu.Unlock()
	pending.Flush(ctx)

	conf, err := s.gateway.AddLeg(ctx, tctx, req)
	var pi *domain.ParlayInfo
	var ti *domain.TeaserInfo
	if err == nil {
		pi, ti = s.fetchReferenceInfo(ctx, wagerType, teaserName, nAfter)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if endErr := s.endMutationLocked(gen); endErr != nil {
		if err == nil {
			log.WithFields(log.Fields{
				"ref":       ref,
				"subMarket": sub,
			}).Warn("Discarding confirmed leg, slip was reset while the add was in flight")
		}
		return nil, endErr
	}
	if err != nil {
		return nil, err
	}

	item.Description = conf.Description
	item.FinalLine = conf.Line
	item.FinalPrice = conf.Price
	if conf.MaxWagerLimit > 0 {
		item.MaxWagerLimit = conf.MaxWagerLimit
	}
	item.CorrelationID = tctx.CorrelationID

	if _, idx := s.ticket.Find(ref, sub, side); idx >= 0 {
		s.ticket.Items[idx] = item
	} else {
		s.ticket.Add(item)
		if filling && s.ticket.OpenSpots > 0 {
			s.ticket.OpenSpots--
		}
	}
	if s.ticket.Accumulator() {
		s.ticket.ResetAmounts()
	}
	if pi != nil {
		s.parlayInfo = pi
	}
	if ti != nil {
		s.teaserInfo = ti
	}
	s.recomputeLocked()

	log.WithFields(log.Fields{
		"sessionID": s.sessionID,
		"ref":       ref,
		"subMarket": sub,
		"side":      side,
		"line":      item.FinalLine,
		"price":     item.FinalPrice,
	}).Info("Added leg to ticket")

	return item.Clone(), nil
}

// prepareAddLocked runs every local pre-filter and builds the remote request.
// Call with the lock held and the in-flight flag set.
func (s *TicketService) prepareAddLocked(op string, ref entities.MarketRef, sub entities.SubMarket, side entities.Side) (*entities.WagerItem, domain.TicketContext, domain.LegRequest, error) {
	var noCtx domain.TicketContext
	var noReq domain.LegRequest

	if !entities.ValidSide(sub, side) {
		return nil, noCtx, noReq, domain.NewValidationError(op, domain.ErrQuoteUnavailable,
			fmt.Sprintf("side %d is not valid for %s", side, sub))
	}
	if (sub == entities.SubMarketContest) != (s.ticket.WagerType == entities.WagerTypeContest) {
		return nil, noCtx, noReq, domain.NewValidationError(op, domain.ErrWagerTypeConflict,
			"contest selections go on contest tickets")
	}

	q, err := s.registry.Quote(ref, sub, side)
	if err != nil {
		return nil, noCtx, noReq, domain.NewValidationError(op, err, ref.String())
	}
	m, ok := s.registry.Lookup(ref)
	if !ok {
		return nil, noCtx, noReq, domain.NewValidationError(op, domain.ErrMarketNotFound, ref.String())
	}

	if s.ticket.WagerType == entities.WagerTypeTeaser {
		switch sub {
		case entities.SubMarketSpread, entities.SubMarketTotal:
		default:
			return nil, noCtx, noReq, domain.NewValidationError(op, domain.ErrWagerTypeConflict,
				"teasers take spreads and totals")
		}
		spec := s.teaserSpecLocked()
		if spec == nil {
			return nil, noCtx, noReq, domain.NewValidationError(op, domain.ErrTeaserUnknown, s.ticket.TeaserName)
		}
		q.Line = teasedLine(sub, side, q.Line, spec.Points)
	}

	if s.ticket.FreePlay {
		if err := s.limits.CheckFreePlayPrice(q.Price); err != nil {
			return nil, noCtx, noReq, err
		}
	}

	n := s.ticket.SelectionCount()
	if !(s.openPlayParent != nil && s.ticket.OpenSpots > 0) {
		n++
	}
	if n > s.ticket.AllowedPicks.Max {
		return nil, noCtx, noReq, domain.NewValidationError(op, domain.ErrMaxPicksReached,
			fmt.Sprintf("at most %d picks", s.ticket.AllowedPicks.Max))
	}

	item := entities.NewWagerItem(ref, sub, side, q, m.EffectiveMax(), s.now())

	if err := s.limits.CheckEligibility(s.ticket, item, n, s.parlayRowLocked(n)); err != nil {
		return nil, noCtx, noReq, err
	}
	if err := s.limits.PreFilterLimit(s.ticket, m); err != nil {
		return nil, noCtx, noReq, err
	}

	tctx := s.ticketContextLocked(uuid.New().String())
	req := domain.LegRequest{Ref: ref, SubMarket: sub, Side: side, Line: q.Line, Price: q.Price}
	return item, tctx, req, nil
}

// RemoveLeg withdraws a selection from the slip and the wagering service. On
// an already posted slip this starts a fresh one first, which necessarily has
// no such leg.
func (s *TicketService) RemoveLeg(ctx context.Context, ref entities.MarketRef, sub entities.SubMarket, side entities.Side) error {
	const op = "remove leg"

	s.mu.Lock()

	pending := events.NewPendingBus(s.publisher)
	if s.ticket.State == entities.TicketStatePosted {
		s.resetLocked(ctx, pending, s.ticket.WagerType, "posted ticket superseded")
	}

	item, _ := s.ticket.Find(ref, sub, side)
	if item == nil {
		s.mu.Unlock()
		pending.Flush(ctx)
		return domain.NewValidationError(op, domain.ErrLegNotFound, entities.LegKey{Ref: ref, SubMarket: sub, Side: side}.String())
	}

	if err := s.beginMutationLocked(op); err != nil {
		s.mu.Unlock()
		pending.Flush(ctx)
		return err
	}
	gen := s.generation

	tctx := s.ticketContextLocked(uuid.New().String())
	req := domain.LegRequest{Ref: ref, SubMarket: sub, Side: side, Line: item.FinalLine, Price: item.FinalPrice}
	if item.Bought != nil {
		req.BoughtHalfPoints = item.Bought.HalfPoints
	}
	wagerType := s.ticket.WagerType
	teaserName := s.ticket.TeaserName
	nAfter := s.ticket.SelectionCount()
	if s.openPlayParent == nil && nAfter > 0 {
		nAfter--
	}

	s.mu.Unlock()
	pending.Flush(ctx)

	err := s.gateway.RemoveLeg(ctx, tctx, req)
	var pi *domain.ParlayInfo
	var ti *domain.TeaserInfo
	if err == nil {
		pi, ti = s.fetchReferenceInfo(ctx, wagerType, teaserName, nAfter)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if endErr := s.endMutationLocked(gen); endErr != nil {
		return endErr
	}
	if err != nil {
		return err
	}

	if _, idx := s.ticket.Find(ref, sub, side); idx >= 0 {
		s.ticket.RemoveAt(idx)
		if s.openPlayParent != nil && s.ticket.OpenSpots < s.openPlaySpots0 {
			s.ticket.OpenSpots++
		}
	}
	if s.ticket.Accumulator() {
		s.ticket.ResetAmounts()
	}
	if pi != nil {
		s.parlayInfo = pi
	}
	if ti != nil {
		s.teaserInfo = ti
	}
	s.recomputeLocked()

	log.WithFields(log.Fields{
		"sessionID": s.sessionID,
		"ref":       ref,
		"subMarket": sub,
		"side":      side,
	}).Info("Removed leg from ticket")

	return nil
}

// SetTicketAmounts prices the whole slip off a single entry: risk or to-win
// for parlays and teasers, the shared per-leg stake for if-bets and reverses.
func (s *TicketService) SetTicketAmounts(risk, toWin entities.Money) error {
	const op = "set ticket amounts"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.amountGateLocked(op); err != nil {
		return err
	}
	if risk < 0 || toWin < 0 || (risk == 0 && toWin == 0) {
		return domain.NewValidationError(op, domain.ErrAmountsMissing, "enter a risk or a to-win amount")
	}
	if risk > 0 && toWin > 0 {
		return domain.NewValidationError(op, domain.ErrAmountsMissing, "enter either risk or to-win, not both")
	}

	switch s.ticket.WagerType {
	case entities.WagerTypeParlay, entities.WagerTypeTeaser:
		if risk == 0 {
			r, err := s.riskForTargetLocked(op, toWin)
			if err != nil {
				return err
			}
			risk = r
		}
		s.ticket.TotalRisk = risk
	case entities.WagerTypeIfWinOnly, entities.WagerTypeIfWinOrPush, entities.WagerTypeActionReverse:
		if risk == 0 {
			return domain.NewValidationError(op, domain.ErrAmountsMissing, "chained tickets price from risk")
		}
		for _, it := range s.ticket.Items {
			it.SetRisk(risk)
			it.AcceptChange()
		}
	default:
		return domain.NewValidationError(op, domain.ErrWagerTypeConflict, "straight legs take per-leg amounts")
	}

	if err := s.recomputeLocked(); err != nil {
		return err
	}

	// The recompute re-propagated chain caps; surface the first violation.
	for _, it := range s.ticket.Items {
		if it.ExceedsLimit() {
			return domain.NewValidationError(op, domain.ErrLimitExceeded,
				fmt.Sprintf("%s limited to %s", it.Key(), it.MaxWagerLimit))
		}
	}
	for _, it := range s.ticket.Items {
		if m, ok := s.registry.Lookup(it.Ref); ok {
			if err := s.limits.PreFilterLimit(s.ticket, m); err != nil {
				return err
			}
		}
	}
	return nil
}

// riskForTargetLocked inverts the slip's payout to find the stake that wins
// the target.
func (s *TicketService) riskForTargetLocked(op string, target entities.Money) (entities.Money, error) {
	if s.ticket.RoundRobin != nil && !s.ticket.RoundRobin.Identity() {
		return 0, domain.NewValidationError(op, domain.ErrAmountsMissing, "round robins price from risk")
	}
	if s.ticket.WagerType == entities.WagerTypeTeaser {
		spec := s.teaserSpecLocked()
		if spec == nil {
			return 0, domain.NewValidationError(op, domain.ErrTeaserUnknown, s.ticket.TeaserName)
		}
		row, ok := spec.PayRowFor(s.ticket.SelectionCount())
		if !ok {
			return 0, domain.NewValidationError(op, domain.ErrPickCount,
				fmt.Sprintf("%s pays no %d-pick card", spec.Name, s.ticket.SelectionCount()))
		}
		return entities.Money(int64(target) * row.RiskUnits / row.WinUnits), nil
	}

	prices := make([]entities.Price, 0, s.ticket.PickCount())
	for _, it := range s.ticket.AllItems() {
		prices = append(prices, it.FinalPrice)
	}
	f := ParlayFactor(prices)
	if f <= 1 {
		return 0, domain.NewValidationError(op, domain.ErrAmountsMissing, "parlay has no priceable legs")
	}
	return entities.Money(float64(target) / (f - 1)), nil
}

// SetLegAmounts prices one leg from a single entry: bettors type risk for
// underdogs and to-win for favorites, and the counterpart derives from the
// leg's price.
func (s *TicketService) SetLegAmounts(ref entities.MarketRef, sub entities.SubMarket, side entities.Side, risk, toWin entities.Money) error {
	const op = "set leg amounts"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.amountGateLocked(op); err != nil {
		return err
	}
	switch s.ticket.WagerType {
	case entities.WagerTypeParlay, entities.WagerTypeTeaser:
		return domain.NewValidationError(op, domain.ErrWagerTypeConflict, "parlay amounts are set on the ticket")
	}

	item, _ := s.ticket.Find(ref, sub, side)
	if item == nil {
		return domain.NewValidationError(op, domain.ErrLegNotFound, entities.LegKey{Ref: ref, SubMarket: sub, Side: side}.String())
	}
	if !item.Available {
		return domain.NewValidationError(op, domain.ErrQuoteUnavailable, item.StatusReason)
	}
	if risk < 0 || toWin < 0 || (risk == 0 && toWin == 0) {
		return domain.NewValidationError(op, domain.ErrAmountsMissing, "enter a risk or a to-win amount")
	}
	if risk > 0 && toWin > 0 {
		return domain.NewValidationError(op, domain.ErrAmountsMissing, "enter either risk or to-win, not both")
	}

	if risk > 0 {
		item.SetRisk(risk)
	} else {
		item.SetToWin(toWin)
	}
	item.AcceptChange()

	if !s.ticket.WagerType.Chained() && item.ExceedsLimit() {
		entry := item.EntryAmount()
		item.ClearAmounts()
		return domain.NewValidationError(op, domain.ErrLimitExceeded,
			fmt.Sprintf("entry %s is over the leg limit %s", entry, item.MaxWagerLimit))
	}

	// Chain caps re-propagate here; violating legs are marked, not rejected.
	s.recomputeLocked()
	return nil
}

// BuyPoints moves a spread or total leg by purchased half points, re-pricing
// it through the wagering service. Zero half points sells the package back.
func (s *TicketService) BuyPoints(ctx context.Context, ref entities.MarketRef, sub entities.SubMarket, side entities.Side, halfPoints int32) error {
	const op = "buy points"

	s.mu.Lock()

	if s.ticket.State == entities.TicketStatePosted {
		s.mu.Unlock()
		return domain.NewValidationError(op, domain.ErrTicketImmutable, "")
	}

	item, _ := s.ticket.Find(ref, sub, side)
	if item == nil {
		s.mu.Unlock()
		return domain.NewValidationError(op, domain.ErrLegNotFound, entities.LegKey{Ref: ref, SubMarket: sub, Side: side}.String())
	}
	switch item.SubMarket {
	case entities.SubMarketSpread, entities.SubMarketTotal:
	default:
		s.mu.Unlock()
		return domain.NewValidationError(op, domain.ErrWagerTypeConflict, "points are bought on spreads and totals")
	}

	m, ok := s.registry.Lookup(ref)
	if !ok {
		s.mu.Unlock()
		return domain.NewValidationError(op, domain.ErrMarketNotFound, ref.String())
	}
	if halfPoints != 0 {
		if _, ok := m.BuyPointOptionFor(halfPoints); !ok {
			s.mu.Unlock()
			return domain.NewValidationError(op, domain.ErrQuoteUnavailable,
				fmt.Sprintf("no %d half-point package on this market", halfPoints))
		}
	}
	base, ok := m.QuoteFor(item.SubMarket, item.Side)
	if !ok {
		s.mu.Unlock()
		return domain.NewValidationError(op, domain.ErrQuoteUnavailable, "market no longer offers the selection")
	}

	if err := s.beginMutationLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	gen := s.generation
	tctx := s.ticketContextLocked(uuid.New().String())
	req := domain.LegRequest{
		Ref:              ref,
		SubMarket:        item.SubMarket,
		Side:             item.Side,
		Line:             base.Line,
		Price:            base.Price,
		BoughtHalfPoints: halfPoints,
	}
	s.mu.Unlock()

	// Re-registering the same key carries the package; the remote replaces
	// the leg and answers with the moved quote.
	conf, err := s.gateway.AddLeg(ctx, tctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if endErr := s.endMutationLocked(gen); endErr != nil {
		return endErr
	}
	if err != nil {
		return err
	}

	item, _ = s.ticket.Find(ref, sub, side)
	if item == nil {
		log.WithFields(log.Fields{"ref": ref, "subMarket": sub}).Warn("Leg vanished while re-pricing bought points")
		return domain.NewValidationError(op, domain.ErrLegNotFound, "leg was removed while re-pricing")
	}

	hadAmounts := item.HasAmounts()
	entry := item.EntryAmount()

	item.Refresh(entities.Quote{Line: conf.Line, Price: conf.Price})
	if conf.MaxWagerLimit > 0 {
		item.RestoreLimit()
		item.MaxWagerLimit = conf.MaxWagerLimit
	}
	if halfPoints == 0 {
		item.Bought = nil
	} else {
		item.Bought = &entities.BoughtPoints{HalfPoints: halfPoints, FromLine: base.Line, FromPrice: base.Price}
	}
	item.CorrelationID = tctx.CorrelationID

	if s.ticket.Accumulator() {
		s.ticket.ResetAmounts()
	} else if hadAmounts {
		if item.FinalPrice.Underdog() {
			item.SetRisk(entry)
		} else {
			item.SetToWin(entry)
		}
	}
	s.recomputeLocked()

	log.WithFields(log.Fields{
		"sessionID":  s.sessionID,
		"ref":        ref,
		"subMarket":  sub,
		"halfPoints": halfPoints,
		"line":       item.FinalLine,
		"price":      item.FinalPrice,
	}).Info("Re-priced leg with bought points")

	return nil
}

// SetFreePlay marks the slip as staking free-play balance. Every leg must
// price at or under the free-play ceiling.
func (s *TicketService) SetFreePlay(on bool) error {
	const op = "set free play"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.amountGateLocked(op); err != nil {
		return err
	}
	if on {
		if s.profile.FreePlayBalance <= 0 {
			return domain.NewValidationError(op, domain.ErrLimitExceeded, "no free-play balance")
		}
		for _, it := range s.ticket.AllItems() {
			if err := s.limits.CheckFreePlayPrice(it.FinalPrice); err != nil {
				return err
			}
		}
	}
	s.ticket.FreePlay = on
	return nil
}

// SelectRoundRobin chooses the parlay grouping; group size equal to the leg
// count is the single full parlay. Round robins and open spots are mutually
// exclusive.
func (s *TicketService) SelectRoundRobin(groupSize int) error {
	const op = "select round robin"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.amountGateLocked(op); err != nil {
		return err
	}
	if s.ticket.WagerType != entities.WagerTypeParlay {
		return domain.NewValidationError(op, domain.ErrWagerTypeConflict, "round robins apply to parlays")
	}
	n := s.ticket.PickCount()
	if groupSize < 2 || groupSize > n {
		return domain.NewValidationError(op, domain.ErrPickCount,
			fmt.Sprintf("group size %d with %d legs", groupSize, n))
	}
	if groupSize != n && s.ticket.OpenSpots > 0 {
		return domain.NewValidationError(op, domain.ErrWagerTypeConflict, "open plays cannot round robin")
	}

	s.ticket.RoundRobin = &entities.RoundRobinSelection{GroupSize: groupSize, Combos: Combinations(n, groupSize)}
	s.ticket.ResetAmounts()
	s.recomputeLocked()
	return nil
}

// RoundRobinChoices lists the selectable groupings for the current slip.
func (s *TicketService) RoundRobinChoices() []entities.RoundRobinSelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits.RoundRobinOptions(s.ticket)
}

// RoundRobinBreakdown expands the selected grouping into its sub-parlays with
// the stake split and per-combo payouts.
func (s *TicketService) RoundRobinBreakdown() ([]RoundRobinCombo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits.ExpandRoundRobin(s.ticket, s.maxPayoutLocked())
}

// SelectOpenSpots reserves future picks on a parlay or teaser before posting.
func (s *TicketService) SelectOpenSpots(nSpots int) error {
	const op = "select open spots"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.amountGateLocked(op); err != nil {
		return err
	}
	switch s.ticket.WagerType {
	case entities.WagerTypeParlay, entities.WagerTypeTeaser:
	default:
		return domain.NewValidationError(op, domain.ErrWagerTypeConflict, "open spots apply to parlays and teasers")
	}
	if s.openPlayParent != nil {
		return domain.NewValidationError(op, domain.ErrWagerTypeConflict, "an extension fills its existing spots")
	}
	if nSpots < 0 {
		return domain.NewValidationError(op, domain.ErrPickCount, "negative open spots")
	}
	if nSpots > 0 {
		if s.ticket.RoundRobin != nil && !s.ticket.RoundRobin.Identity() {
			return domain.NewValidationError(op, domain.ErrWagerTypeConflict, "round robins cannot hold open spots")
		}
		valid := false
		for _, c := range s.limits.OpenSpotChoices(s.ticket, s.ticket.AllowedPicks) {
			if c == nSpots {
				valid = true
				break
			}
		}
		if !valid {
			return domain.NewValidationError(op, domain.ErrPickCount,
				fmt.Sprintf("%d open spots not offered", nSpots))
		}
	}

	s.ticket.OpenSpots = nSpots
	s.ticket.ResetAmounts()
	s.recomputeLocked()
	return nil
}

// OpenSpotOptions lists the selectable open-spot counts for the current slip.
func (s *TicketService) OpenSpotOptions() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits.OpenSpotChoices(s.ticket, s.ticket.AllowedPicks)
}

// StartNewTicket abandons the working slip and installs a fresh one of the
// given type. A mutation still in flight for the old slip discards its result
// when it returns.
func (s *TicketService) StartNewTicket(ctx context.Context, wt entities.WagerType) (*entities.Ticket, error) {
	if !wt.Valid() {
		return nil, domain.NewValidationError("start new ticket", domain.ErrWagerTypeConflict, string(wt))
	}

	s.mu.Lock()
	pending := events.NewPendingBus(s.publisher)
	s.resetLocked(ctx, pending, wt, "new ticket started")
	snap := s.ticket.Clone()
	s.mu.Unlock()
	pending.Flush(ctx)
	return snap, nil
}

// EmptyTicket clears the slip in place, keeping the wager type.
func (s *TicketService) EmptyTicket(ctx context.Context) {
	s.mu.Lock()
	pending := events.NewPendingBus(s.publisher)
	s.resetLocked(ctx, pending, s.ticket.WagerType, "ticket emptied")
	s.mu.Unlock()
	pending.Flush(ctx)
}

// SetWagerType switches the slip to a new type, clearing every selection.
// Teasers must name an offered spec.
func (s *TicketService) SetWagerType(ctx context.Context, wt entities.WagerType, teaserName string) error {
	const op = "set wager type"

	if !wt.Valid() {
		return domain.NewValidationError(op, domain.ErrWagerTypeConflict, string(wt))
	}
	if wt != entities.WagerTypeTeaser && teaserName != "" {
		return domain.NewValidationError(op, domain.ErrWagerTypeConflict, "a teaser name applies to teasers")
	}
	if wt == entities.WagerTypeTeaser && teaserName == "" {
		return domain.NewValidationError(op, domain.ErrTeaserUnknown, "teaser not named")
	}

	s.mu.Lock()
	if s.ticket.State != entities.TicketStatePosted &&
		s.ticket.WagerType == wt && s.ticket.TeaserName == teaserName {
		s.mu.Unlock()
		return nil
	}
	if err := s.beginMutationLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	gen := s.generation
	s.mu.Unlock()

	var ti *domain.TeaserInfo
	if wt == entities.WagerTypeTeaser {
		info, err := s.gateway.TeaserInfo(ctx, teaserName)
		if err != nil {
			log.WithError(err).WithField("teaser", teaserName).Debug("Teaser reference fetch failed, trying local tables")
			if _, ok := s.limits.Tables().TeaserByName(teaserName); !ok {
				s.mu.Lock()
				if s.generation == gen {
					s.inFlight = false
				}
				s.mu.Unlock()
				return domain.NewValidationError(op, domain.ErrTeaserUnknown, teaserName)
			}
		} else {
			ti = info
		}
	}

	pending := events.NewPendingBus(s.publisher)
	s.mu.Lock()
	if err := s.endMutationLocked(gen); err != nil {
		s.mu.Unlock()
		return err
	}
	s.resetLocked(ctx, pending, wt, "wager type changed")
	s.ticket.TeaserName = teaserName
	s.teaserInfo = ti
	s.recomputeLocked()
	s.mu.Unlock()
	pending.Flush(ctx)
	return nil
}

// ExtendOpenPlay reopens a posted open play for its remaining picks: the new
// slip inherits the confirmed legs read-only and fills the leftover spots
// against the same remote ticket.
func (s *TicketService) ExtendOpenPlay(ctx context.Context) (*entities.Ticket, error) {
	const op = "extend open play"

	s.mu.Lock()

	if s.ticket.State != entities.TicketStatePosted || s.ticket.TicketNumber == nil {
		s.mu.Unlock()
		return nil, domain.NewValidationError(op, domain.ErrWagerTypeConflict, "no posted open play to extend")
	}
	if s.ticket.OpenSpots == 0 {
		s.mu.Unlock()
		return nil, domain.NewValidationError(op, domain.ErrWagerTypeConflict, "posted ticket has no open spots")
	}

	parent := *s.ticket.TicketNumber
	spots := s.ticket.OpenSpots
	wagerType := s.ticket.WagerType
	teaserName := s.ticket.TeaserName
	freePlay := s.ticket.FreePlay
	inherited := make([]*entities.WagerItem, 0, len(s.ticket.Items))
	for _, it := range s.ticket.Items {
		if it.IsOK {
			inherited = append(inherited, it.Clone())
		}
	}

	pending := events.NewPendingBus(s.publisher)
	s.resetLocked(ctx, pending, wagerType, "open play extension")
	s.ticket.TeaserName = teaserName
	s.ticket.FreePlay = freePlay
	s.ticket.OpenItems = inherited
	s.ticket.OpenSpots = spots
	s.ticket.State = entities.TicketStateBuilding
	s.openPlayParent = &parent
	s.openPlaySpots0 = spots
	s.recomputeLocked()
	snap := s.ticket.Clone()

	s.mu.Unlock()
	pending.Flush(ctx)

	log.WithFields(log.Fields{
		"sessionID":    s.sessionID,
		"ticketNumber": parent,
		"openSpots":    spots,
	}).Info("Extending open play")

	return snap, nil
}

// AcceptLegChange acknowledges a flagged quote move, keeping the leg at its
// refreshed numbers.
func (s *TicketService) AcceptLegChange(ref entities.MarketRef, sub entities.SubMarket, side entities.Side) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, _ := s.ticket.Find(ref, sub, side)
	if item == nil {
		return domain.NewValidationError("accept change", domain.ErrLegNotFound,
			entities.LegKey{Ref: ref, SubMarket: sub, Side: side}.String())
	}
	item.AcceptChange()
	return nil
}

// Post submits the slip. Local invariants run first; the wagering service
// stays the final authority and can reject the whole ticket or single legs.
func (s *TicketService) Post(ctx context.Context) (*entities.PostedTicket, error) {
	const op = "post"

	s.mu.Lock()

	switch s.ticket.State {
	case entities.TicketStatePosted:
		s.mu.Unlock()
		return nil, domain.NewValidationError(op, domain.ErrTicketImmutable, "")
	case entities.TicketStateEmpty:
		s.mu.Unlock()
		return nil, domain.NewValidationError(op, domain.ErrPickCount, "ticket is empty")
	case entities.TicketStatePosting:
		s.mu.Unlock()
		return nil, domain.NewValidationError(op, domain.ErrMutationInFlight, "post in progress")
	}
	if s.inFlight {
		s.mu.Unlock()
		return nil, domain.NewValidationError(op, domain.ErrMutationInFlight, "")
	}
	if err := s.validatePostLocked(op); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.inFlight = true
	gen := s.generation
	s.ticket.BeginPosting()
	tctx := s.ticketContextLocked(uuid.New().String())
	req := s.postRequestLocked()
	s.mu.Unlock()

	outcome, err := s.gateway.PostTicket(ctx, tctx, req)

	s.mu.Lock()
	if endErr := s.endMutationLocked(gen); endErr != nil {
		s.mu.Unlock()
		return nil, endErr
	}
	if err != nil {
		s.ticket.FailPost()
		s.mu.Unlock()
		return nil, err
	}

	posted, retErr := s.applyPostOutcomeLocked(outcome)
	sessionID := s.sessionID
	s.mu.Unlock()

	if posted != nil {
		accepted, rejected := 0, 0
		for _, leg := range posted.Legs {
			if leg.IsOK {
				accepted++
			} else {
				rejected++
			}
		}
		s.publisher.Publish(ctx, events.TicketPostedEvent{
			TicketNumber: posted.TicketNumber,
			WagerType:    posted.WagerType,
			Result:       posted.Result,
			LegsAccepted: accepted,
			LegsRejected: rejected,
			TotalRisk:    posted.TotalRisk,
			TotalToWin:   posted.TotalToWin,
		})
		if s.archive != nil {
			if aerr := s.archive.Archive(ctx, posted); aerr != nil {
				log.WithError(aerr).WithField("ticketNumber", posted.TicketNumber).Error("Failed to archive posted ticket")
			}
		}
		log.WithFields(log.Fields{
			"sessionID":    sessionID,
			"ticketNumber": posted.TicketNumber,
			"result":       posted.Result,
			"legsAccepted": accepted,
			"legsRejected": rejected,
			"totalRisk":    posted.TotalRisk,
		}).Info("Posted ticket")
	}
	return posted, retErr
}

// validatePostLocked runs the local preconditions of a post.
func (s *TicketService) validatePostLocked(op string) error {
	t := s.ticket

	if t.PickCount() < 1 {
		return domain.NewValidationError(op, domain.ErrPickCount, "no concrete picks")
	}
	n := t.SelectionCount()
	if !t.AllowedPicks.Contains(n) {
		return domain.NewValidationError(op, domain.ErrPickCount,
			fmt.Sprintf("%d selections, allowed %d to %d", n, t.AllowedPicks.Min, t.AllowedPicks.Max))
	}
	// Composition rows depend on the size, so a remove can land the slip on a
	// stricter row than the one it was built against. Re-check before the wire.
	if err := s.limits.CheckEligibility(t, nil, n, s.parlayRowLocked(n)); err != nil {
		return err
	}
	for _, it := range t.Items {
		if !it.Available {
			return domain.NewValidationError(op, domain.ErrQuoteUnavailable, it.Key().String())
		}
		if !it.IsOK {
			return domain.NewValidationError(op, domain.ErrLimitExceeded,
				fmt.Sprintf("%s: %s", it.Key(), it.StatusReason))
		}
	}
	switch t.WagerType {
	case entities.WagerTypeParlay, entities.WagerTypeTeaser:
		if t.TotalRisk <= 0 {
			return domain.NewValidationError(op, domain.ErrAmountsMissing, "enter the ticket amount")
		}
	default:
		for _, it := range t.Items {
			if !it.HasAmounts() {
				return domain.NewValidationError(op, domain.ErrAmountsMissing, it.Key().String())
			}
		}
	}
	if err := s.limits.CheckChainPost(t, s.profile.UnrestrictedCredit); err != nil {
		return err
	}
	if t.FreePlay && t.TotalRisk > s.profile.FreePlayBalance {
		return domain.NewValidationError(op, domain.ErrLimitExceeded,
			fmt.Sprintf("free-play balance is %s", s.profile.FreePlayBalance))
	}
	return nil
}

// postRequestLocked snapshots the slip into the remote submission shape.
func (s *TicketService) postRequestLocked() domain.PostRequest {
	t := s.ticket

	legs := make([]domain.PostLeg, 0, len(t.Items))
	for _, it := range t.Items {
		leg := domain.PostLeg{
			LegRequest: domain.LegRequest{
				Ref:       it.Ref,
				SubMarket: it.SubMarket,
				Side:      it.Side,
				Line:      it.FinalLine,
				Price:     it.FinalPrice,
			},
			Risk:  it.Risk(),
			ToWin: it.ToWin(),
		}
		if it.Bought != nil {
			leg.BoughtHalfPoints = it.Bought.HalfPoints
		}
		legs = append(legs, leg)
	}

	var rr *entities.RoundRobinSelection
	if t.RoundRobin != nil {
		sel := *t.RoundRobin
		rr = &sel
	}
	return domain.PostRequest{
		Legs:       legs,
		OpenSpots:  t.OpenSpots,
		RoundRobin: rr,
		TotalRisk:  t.TotalRisk,
		TotalToWin: t.TotalToWin,
		FreePlay:   t.FreePlay,
	}
}

// applyPostOutcomeLocked maps the remote verdict back onto the slip.
func (s *TicketService) applyPostOutcomeLocked(outcome *domain.PostOutcome) (*entities.PostedTicket, error) {
	t := s.ticket

	// Per-leg verdicts apply regardless of the overall code. Remote messages
	// pass through verbatim.
	for _, st := range outcome.Legs {
		if st.Index < 0 || st.Index >= len(t.Items) {
			continue
		}
		it := t.Items[st.Index]
		if st.OK {
			if st.Price != 0 && (st.Line != it.FinalLine || st.Price != it.FinalPrice) {
				it.Refresh(entities.Quote{Line: st.Line, Price: st.Price})
			}
			continue
		}
		it.MarkRejected(st.Message)
	}

	if outcome.Code == entities.PostResultRejected || outcome.TicketNumber == nil {
		t.FailPost()
		return nil, &domain.RemoteRejectionError{Op: "post", Message: outcome.Message}
	}

	now := s.now()
	t.CompletePost(*outcome.TicketNumber, now)

	accepted := 0
	var failures []domain.LegFailure
	legs := make([]*entities.WagerItem, 0, len(t.Items))
	for i, it := range t.Items {
		if it.IsOK {
			accepted++
		} else {
			failures = append(failures, domain.LegFailure{Index: i, Message: it.StatusReason})
		}
		legs = append(legs, it.Clone())
	}

	var rr *entities.RoundRobinSelection
	if t.RoundRobin != nil {
		sel := *t.RoundRobin
		rr = &sel
	}
	posted := &entities.PostedTicket{
		TicketNumber: *outcome.TicketNumber,
		AccountID:    s.profile.AccountID,
		WagerType:    t.WagerType,
		TeaserName:   t.TeaserName,
		Legs:         legs,
		OpenSpots:    t.OpenSpots,
		RoundRobin:   rr,
		TotalRisk:    t.TotalRisk,
		TotalToWin:   t.TotalToWin,
		FreePlay:     t.FreePlay,
		PostedAt:     now,
		Result:       outcome.Code,
	}

	if outcome.Code == entities.PostResultPartial || len(failures) > 0 {
		posted.Result = entities.PostResultPartial
		return posted, &domain.PartialPostError{
			TicketNumber: posted.TicketNumber,
			Accepted:     accepted,
			Failures:     failures,
		}
	}
	return posted, nil
}

// amountGateLocked guards the local-only mutations that never leave the
// process: immutable once posted, deferred while a post is running.
func (s *TicketService) amountGateLocked(op string) error {
	switch s.ticket.State {
	case entities.TicketStatePosted:
		return domain.NewValidationError(op, domain.ErrTicketImmutable, "")
	case entities.TicketStatePosting:
		return domain.NewValidationError(op, domain.ErrMutationInFlight, "post in progress")
	}
	return nil
}

// beginMutationLocked claims the single in-flight slot.
func (s *TicketService) beginMutationLocked(op string) error {
	if s.ticket.State == entities.TicketStatePosting {
		return domain.NewValidationError(op, domain.ErrMutationInFlight, "post in progress")
	}
	if s.inFlight {
		return domain.NewValidationError(op, domain.ErrMutationInFlight, "")
	}
	s.inFlight = true
	return nil
}

// endMutationLocked releases the in-flight slot, reporting whether the slip
// this mutation belonged to still exists.
func (s *TicketService) endMutationLocked(gen uint64) error {
	if s.generation != gen {
		// The slip was replaced while the call was out; the new incarnation
		// owns the in-flight flag now.
		return domain.ErrMutationDiscarded
	}
	s.inFlight = false
	return nil
}

// installTicketLocked replaces the slip with a fresh one, invalidating any
// in-flight mutation against the old incarnation.
func (s *TicketService) installTicketLocked(wt entities.WagerType) {
	s.generation++
	s.inFlight = false
	s.sessionID = uuid.New().String()
	s.ticket = entities.NewTicket(wt, s.now())
	s.ticket.AllowedPicks = s.limits.Tables().PicksFor(wt, nil)
	s.openPlayParent = nil
	s.openPlaySpots0 = 0
	s.parlayInfo = nil
	s.teaserInfo = nil
}

func (s *TicketService) resetLocked(ctx context.Context, pending *events.PendingBus, wt entities.WagerType, reason string) {
	s.installTicketLocked(wt)
	pending.Publish(ctx, events.TicketResetEvent{Reason: reason, WagerType: wt})
	log.WithFields(log.Fields{
		"sessionID": s.sessionID,
		"wagerType": wt,
		"reason":    reason,
	}).Debug("Installed fresh ticket")
}

func (s *TicketService) ticketContextLocked(correlationID string) domain.TicketContext {
	return domain.TicketContext{
		SessionID:     s.sessionID,
		AccountID:     s.profile.AccountID,
		TicketNumber:  s.openPlayParent,
		WagerType:     s.ticket.WagerType,
		TeaserName:    s.ticket.TeaserName,
		FreePlay:      s.ticket.FreePlay,
		CorrelationID: correlationID,
	}
}

// teaserSpecLocked resolves the slip's teaser: the remote catalogue answer
// when fresh, the local tables otherwise.
func (s *TicketService) teaserSpecLocked() *entities.TeaserSpec {
	if s.teaserInfo != nil {
		return &s.teaserInfo.Spec
	}
	if spec, ok := s.limits.Tables().TeaserByName(s.ticket.TeaserName); ok {
		return spec
	}
	return nil
}

func (s *TicketService) maxPayoutLocked() entities.Money {
	if s.parlayInfo != nil && s.parlayInfo.MaxPayout > 0 {
		return s.parlayInfo.MaxPayout
	}
	return s.limits.Tables().MaxPayout
}

// parlayRowLocked prefers the remote reference row when it matches the given
// size; otherwise the limit engine falls back to the local tables.
func (s *TicketService) parlayRowLocked(n int) *entities.ParlayLimit {
	if s.parlayInfo != nil && s.parlayInfo.Picks == n {
		return s.parlayInfo.Limit
	}
	return nil
}

// recomputeLocked refreshes derived slip state after any change: allowed
// picks, the round robin expansion, totals and chain limit propagation. The
// returned error reports a slip that does not price; amounts are zeroed when
// it does.
func (s *TicketService) recomputeLocked() error {
	t := s.ticket

	teaser := s.teaserSpecLocked()
	t.AllowedPicks = s.limits.Tables().PicksFor(t.WagerType, teaser)

	if t.RoundRobin != nil {
		n := t.PickCount()
		if n < 2 || t.RoundRobin.GroupSize > n {
			t.RoundRobin = nil
		} else {
			t.RoundRobin.Combos = Combinations(n, t.RoundRobin.GroupSize)
		}
	}

	risk, toWin, err := s.limits.ComputeTotals(t, teaser, s.maxPayoutLocked())
	if err != nil {
		log.WithError(err).Debug("Ticket totals not computable")
		t.TotalRisk, t.TotalToWin = 0, 0
	} else {
		t.TotalRisk, t.TotalToWin = risk, toWin
	}

	s.limits.ApplyChainLimits(t)
	return err
}

// fetchReferenceInfo refreshes remote parlay and teaser reference data after a
// confirmed mutation. Failures fall back to the local tables.
func (s *TicketService) fetchReferenceInfo(ctx context.Context, wt entities.WagerType, teaserName string, picks int) (*domain.ParlayInfo, *domain.TeaserInfo) {
	switch wt {
	case entities.WagerTypeParlay:
		pi, err := s.gateway.ParlayInfo(ctx, "", picks)
		if err != nil {
			log.WithError(err).Debug("Parlay reference refresh failed, using local tables")
			return nil, nil
		}
		return pi, nil
	case entities.WagerTypeTeaser:
		ti, err := s.gateway.TeaserInfo(ctx, teaserName)
		if err != nil {
			log.WithError(err).WithField("teaser", teaserName).Debug("Teaser reference refresh failed, using local tables")
			return nil, nil
		}
		return nil, ti
	}
	return nil, nil
}

// teasedLine moves a quote by the teaser's points in the bettor's favor.
// Spread lines are side-relative so the move is always additive; totals move
// down for overs and up for unders.
func teasedLine(sub entities.SubMarket, side entities.Side, l entities.Line, points entities.Line) entities.Line {
	switch sub {
	case entities.SubMarketSpread:
		return l + points
	case entities.SubMarketTotal:
		if side == entities.SideOver {
			return l - points
		}
		return l + points
	}
	return l
}
