package services

import (
	"fmt"
	"slices"

	"betslip/domain"
	"betslip/domain/entities"
)

// LimitEngine answers eligibility and pricing questions from a ticket
// snapshot, the market registry and the reference tables. It never calls out
// and never mutates the registry; ticket mutation is limited to the leg
// status fields the chain-limit rule owns.
type LimitEngine struct {
	registry *MarketRegistry
	tables   *entities.LimitTables
}

func NewLimitEngine(registry *MarketRegistry, tables *entities.LimitTables) *LimitEngine {
	return &LimitEngine{
		registry: registry,
		tables:   tables,
	}
}

// Tables exposes the reference data in force.
func (e *LimitEngine) Tables() *entities.LimitTables {
	return e.tables
}

// CheckEligibility enforces the parlay composition row for the selection
// count n the ticket would reach (n <= 0 derives it from the ticket plus the
// candidate): at most MaxDogs underdog legs, MaxTotals totals legs and
// MaxMoneyLines money-line legs, counted across confirmed and open legs plus
// the candidate. A nil row override falls back to the local tables; an absent
// row passes unrestricted.
func (e *LimitEngine) CheckEligibility(t *entities.Ticket, extra *entities.WagerItem, n int, row *entities.ParlayLimit) error {
	switch t.WagerType {
	case entities.WagerTypeParlay, entities.WagerTypeTeaser:
	default:
		return nil
	}

	if n <= 0 {
		n = t.SelectionCount()
		if extra != nil {
			n++
		}
	}
	if row == nil {
		row = e.tables.ParlayLimitFor(n)
	}
	if row == nil {
		return nil
	}

	legs := slices.Clone(t.AllItems())
	if extra != nil {
		legs = append(legs, extra)
	}

	dogs, totals, moneyLines := 0, 0, 0
	for _, it := range legs {
		if e.registry.IsUnderdog(it) {
			dogs++
		}
		switch it.SubMarket {
		case entities.SubMarketTotal, entities.SubMarketTeamTotal:
			totals++
		case entities.SubMarketMoneyLine:
			moneyLines++
		}
	}

	if row.MaxDogs != nil && dogs > *row.MaxDogs {
		return domain.NewValidationError("eligibility", domain.ErrLimitExceeded,
			fmt.Sprintf("a %d-team %s allows at most %d underdog legs", n, t.WagerType, *row.MaxDogs))
	}
	if row.MaxTotals != nil && totals > *row.MaxTotals {
		return domain.NewValidationError("eligibility", domain.ErrLimitExceeded,
			fmt.Sprintf("a %d-team %s allows at most %d totals legs", n, t.WagerType, *row.MaxTotals))
	}
	if row.MaxMoneyLines != nil && moneyLines > *row.MaxMoneyLines {
		return domain.NewValidationError("eligibility", domain.ErrLimitExceeded,
			fmt.Sprintf("a %d-team %s allows at most %d money-line legs", n, t.WagerType, *row.MaxMoneyLines))
	}
	return nil
}

// PreFilterLimit rejects an accumulator leg whose market limit is already
// below the ticket's committed total, saving a remote round-trip that is
// certain to fail. The remote service remains the final authority.
func (e *LimitEngine) PreFilterLimit(t *entities.Ticket, m *entities.Market) error {
	if !t.Accumulator() {
		return nil
	}
	commitment := t.TotalToWin
	if commitment == 0 {
		commitment = t.TotalRisk
	}
	if commitment == 0 {
		return nil
	}
	if max := m.EffectiveMax(); commitment > max {
		return domain.NewValidationError("pre-filter", domain.ErrLimitExceeded,
			fmt.Sprintf("market limit %s is below the ticket commitment %s", max, commitment))
	}
	return nil
}

// CheckFreePlayPrice blocks legs priced above the free-play ceiling from
// free-play tickets.
func (e *LimitEngine) CheckFreePlayPrice(p entities.Price) error {
	max := e.tables.MaxFreePlayPrice
	if max == 0 || p <= max {
		return nil
	}
	return domain.NewValidationError("free play", domain.ErrFreePlayPrice,
		fmt.Sprintf("price %s exceeds the free-play maximum %s", p, max))
}

// RoundRobinOptions lists the selectable group sizes for the current leg
// count, identity (the full parlay) first. Open spots and round robins are
// mutually exclusive.
func (e *LimitEngine) RoundRobinOptions(t *entities.Ticket) []entities.RoundRobinSelection {
	if t.WagerType != entities.WagerTypeParlay || t.OpenSpots > 0 {
		return nil
	}
	n := t.PickCount()
	if n < 2 {
		return nil
	}
	opts := []entities.RoundRobinSelection{{GroupSize: n, Combos: 1}}
	for k := 2; k < n; k++ {
		opts = append(opts, entities.RoundRobinSelection{
			GroupSize: k,
			Combos:    Combinations(n, k),
		})
	}
	return opts
}

// OpenSpotChoices lists the selectable open-spot counts: 1 up to
// (max picks - confirmed + 1), truncated to the reference ceiling. A
// non-identity round robin disables open spots.
func (e *LimitEngine) OpenSpotChoices(t *entities.Ticket, picks entities.PickRange) []int {
	switch t.WagerType {
	case entities.WagerTypeParlay, entities.WagerTypeTeaser:
	default:
		return nil
	}
	if t.RoundRobin != nil && !t.RoundRobin.Identity() {
		return nil
	}
	upper := picks.Max - t.PickCount() + 1
	if e.tables.OpenSpotMax > 0 && upper > e.tables.OpenSpotMax {
		upper = e.tables.OpenSpotMax
	}
	if upper < 1 {
		return nil
	}
	choices := make([]int, 0, upper)
	for i := 1; i <= upper; i++ {
		choices = append(choices, i)
	}
	return choices
}

// RoundRobinCombo is one expanded sub-parlay of a round robin.
type RoundRobinCombo struct {
	LegIndexes []int
	Risk       entities.Money
	ToWin      entities.Money
}

// ExpandRoundRobin splits the ticket's total risk evenly across every
// GroupSize-combination of its legs and prices each sub-parlay, capped by the
// house maximum payout.
func (e *LimitEngine) ExpandRoundRobin(t *entities.Ticket, maxPayout entities.Money) ([]RoundRobinCombo, error) {
	if t.RoundRobin == nil || t.RoundRobin.Identity() {
		return nil, domain.NewValidationError("round robin", domain.ErrWagerTypeConflict,
			"no round-robin grouping selected")
	}
	legs := t.AllItems()
	subsets := KSubsets(len(legs), t.RoundRobin.GroupSize)
	if len(subsets) == 0 {
		return nil, domain.NewValidationError("round robin", domain.ErrPickCount,
			fmt.Sprintf("group size %d does not fit %d legs", t.RoundRobin.GroupSize, len(legs)))
	}
	if maxPayout == 0 {
		maxPayout = e.tables.MaxPayout
	}

	perRisk := t.TotalRisk / entities.Money(len(subsets))
	combos := make([]RoundRobinCombo, 0, len(subsets))
	for _, subset := range subsets {
		prices := make([]entities.Price, 0, len(subset))
		for _, i := range subset {
			prices = append(prices, legs[i].FinalPrice)
		}
		combos = append(combos, RoundRobinCombo{
			LegIndexes: subset,
			Risk:       perRisk,
			ToWin:      ParlayToWin(perRisk, prices, maxPayout),
		})
	}
	return combos, nil
}

// ComputeTotals prices the whole ticket for its wager type. The teaser spec
// and payout ceiling may be overridden by fresher remote reference data; zero
// values fall back to the local tables.
func (e *LimitEngine) ComputeTotals(t *entities.Ticket, teaser *entities.TeaserSpec, maxPayout entities.Money) (risk, toWin entities.Money, err error) {
	if maxPayout == 0 {
		maxPayout = e.tables.MaxPayout
	}

	switch t.WagerType {
	case entities.WagerTypeStraight, entities.WagerTypeContest:
		for _, it := range t.Items {
			risk += it.Risk()
			toWin += it.ToWin()
		}
		return risk, toWin, nil

	case entities.WagerTypeParlay:
		risk = t.TotalRisk
		if risk == 0 {
			return 0, 0, nil
		}
		if t.RoundRobin != nil && !t.RoundRobin.Identity() {
			combos, err := e.ExpandRoundRobin(t, maxPayout)
			if err != nil {
				return 0, 0, err
			}
			for _, c := range combos {
				toWin += c.ToWin
			}
			if maxPayout > 0 && toWin > maxPayout {
				toWin = maxPayout
			}
			return risk, toWin, nil
		}
		toWin = ParlayToWin(risk, availablePrices(t), maxPayout)
		return risk, toWin, nil

	case entities.WagerTypeTeaser:
		if teaser == nil {
			spec, ok := e.tables.TeaserByName(t.TeaserName)
			if !ok {
				return 0, 0, domain.NewValidationError("teaser pricing", domain.ErrTeaserUnknown,
					fmt.Sprintf("no teaser named %q", t.TeaserName))
			}
			teaser = spec
		}
		risk = t.TotalRisk
		if risk == 0 {
			return 0, 0, nil
		}
		row, ok := teaser.PayRowFor(t.SelectionCount())
		if !ok {
			return 0, 0, domain.NewValidationError("teaser pricing", domain.ErrPickCount,
				fmt.Sprintf("%s has no pay row for %d picks", teaser.Name, t.SelectionCount()))
		}
		toWin = row.ToWin(risk)
		// The pay card is a floor: an underdog leg keeps its price-implied
		// payout when that beats the card.
		for _, it := range t.AllItems() {
			if !it.Available || !it.FinalPrice.Underdog() {
				continue
			}
			if implied := it.FinalPrice.ToWin(risk); implied > toWin {
				toWin = implied
			}
		}
		if maxPayout > 0 && toWin > maxPayout {
			toWin = maxPayout
		}
		return risk, toWin, nil

	case entities.WagerTypeIfWinOnly, entities.WagerTypeIfWinOrPush:
		// The chain's exposure is its first stake; wins collect per leg.
		if len(t.Items) > 0 {
			risk = t.Items[0].Risk()
		}
		for _, it := range t.Items {
			toWin += it.ToWin()
		}
		return risk, toWin, nil

	case entities.WagerTypeActionReverse:
		// Two mirrored chains: both stakes are exposed, both collect.
		for _, it := range t.Items {
			risk += it.Risk()
			toWin += it.ToWin()
		}
		return risk, 2 * toWin, nil
	}

	return 0, 0, nil
}

func availablePrices(t *entities.Ticket) []entities.Price {
	prices := make([]entities.Price, 0, t.PickCount())
	for _, it := range t.AllItems() {
		if it.Available {
			prices = append(prices, it.FinalPrice)
		}
	}
	return prices
}

// ApplyChainLimits recomputes every chained leg's wager limit from the
// preceding leg's payout, converted into the leg's entry units and clamped to
// its own market limit. Legs whose entered amount breaks the recomputed limit
// are marked not-ok with "Amount Exceeded" instead of being rejected.
func (e *LimitEngine) ApplyChainLimits(t *entities.Ticket) {
	if !t.WagerType.Chained() {
		for _, it := range t.Items {
			it.RestoreLimit()
		}
		return
	}

	if t.WagerType == entities.WagerTypeActionReverse {
		e.applyReverseLimits(t)
		return
	}

	for i, it := range t.Items {
		it.RestoreLimit()
		if i == 0 {
			continue
		}
		prev := t.Items[i-1]
		if !prev.HasAmounts() {
			e.settleChainStatus(it)
			continue
		}
		budget := prev.Risk()
		if t.WagerType == entities.WagerTypeIfWinOnly {
			budget += prev.ToWin()
		}
		it.CapLimit(entities.ConvertAtPrice(budget, it.FinalPrice))
		e.settleChainStatus(it)
	}
}

// applyReverseLimits caps each of the two legs by the other's stake, since an
// action reverse runs the win-or-push chain in both directions.
func (e *LimitEngine) applyReverseLimits(t *entities.Ticket) {
	for _, it := range t.Items {
		it.RestoreLimit()
	}
	if len(t.Items) != 2 {
		return
	}
	a, b := t.Items[0], t.Items[1]
	if b.HasAmounts() {
		a.CapLimit(entities.ConvertAtPrice(b.Risk(), a.FinalPrice))
	}
	if a.HasAmounts() {
		b.CapLimit(entities.ConvertAtPrice(a.Risk(), b.FinalPrice))
	}
	e.settleChainStatus(a)
	e.settleChainStatus(b)
}

func (e *LimitEngine) settleChainStatus(it *entities.WagerItem) {
	if !it.Available {
		return
	}
	if it.ExceedsLimit() {
		it.MarkRejected("Amount Exceeded")
		return
	}
	if !it.IsOK && it.StatusReason == "Amount Exceeded" {
		it.IsOK = true
		it.StatusReason = ""
	}
}

// CheckChainPost is the post-time precondition: each chained stake must fit
// inside the preceding leg's payout (win-only collects risk plus winnings,
// win-or-push only the returned stake). Accounts with unrestricted credit
// skip it.
func (e *LimitEngine) CheckChainPost(t *entities.Ticket, unrestrictedCredit bool) error {
	if !t.WagerType.Chained() || unrestrictedCredit {
		return nil
	}

	if t.WagerType == entities.WagerTypeActionReverse {
		if len(t.Items) != 2 {
			return domain.NewValidationError("post", domain.ErrPickCount,
				"an action reverse takes exactly 2 legs")
		}
		a, b := t.Items[0], t.Items[1]
		if a.Risk() != b.Risk() {
			return domain.NewValidationError("post", domain.ErrLimitExceeded,
				"action-reverse legs must carry equal stakes")
		}
		return nil
	}

	for i := 1; i < len(t.Items); i++ {
		prev, cur := t.Items[i-1], t.Items[i]
		budget := prev.Risk()
		if t.WagerType == entities.WagerTypeIfWinOnly {
			budget += prev.ToWin()
		}
		if cur.Risk() > budget {
			return domain.NewValidationError("post", domain.ErrLimitExceeded,
				fmt.Sprintf("leg %d risks %s against a preceding payout of %s", i+1, cur.Risk(), budget))
		}
	}
	return nil
}
