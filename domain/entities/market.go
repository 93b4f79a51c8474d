package entities

import (
	"fmt"
	"slices"
	"time"
)

// MarketRef identifies one period's betting market within a game. Period 0 is
// the full game; halves and quarters follow the feed's numbering.
type MarketRef struct {
	GameID       int64 `json:"game_id"`
	PeriodNumber int32 `json:"period_number"`
}

func (r MarketRef) String() string {
	return fmt.Sprintf("game %d period %d", r.GameID, r.PeriodNumber)
}

// MarketStatus tracks whether a market currently accepts wagers.
type MarketStatus string

const (
	MarketStatusOpen MarketStatus = "open"
	MarketStatusHeld MarketStatus = "held"
)

// MarketKind separates two-sided game markets from list-of-entrants contests.
type MarketKind string

const (
	MarketKindGame    MarketKind = "game"
	MarketKindContest MarketKind = "contest"
)

// SpreadQuote prices the point-spread pair. Points is team 1's handicap; team
// 2 takes the mirrored line.
type SpreadQuote struct {
	Points Line  `json:"points"`
	Team1  Price `json:"team1_price"`
	Team2  Price `json:"team2_price"`
}

// MoneyLineQuote prices the outright result. Draw is zero when the market is
// two-way.
type MoneyLineQuote struct {
	Team1 Price `json:"team1_price"`
	Team2 Price `json:"team2_price"`
	Draw  Price `json:"draw_price,omitempty"`
}

// TotalQuote prices the combined-score total.
type TotalQuote struct {
	Points Line  `json:"points"`
	Over   Price `json:"over_price"`
	Under  Price `json:"under_price"`
}

// TeamTotalQuote prices the per-team totals across the four over/under
// positions.
type TeamTotalQuote struct {
	HomePoints Line  `json:"home_points"`
	HomeOver   Price `json:"home_over_price"`
	HomeUnder  Price `json:"home_under_price"`
	AwayPoints Line  `json:"away_points"`
	AwayOver   Price `json:"away_over_price"`
	AwayUnder  Price `json:"away_under_price"`
}

// ContestantQuote prices one entrant of a contest market.
type ContestantQuote struct {
	Position Side   `json:"position"`
	Name     string `json:"name"`
	Price    Price  `json:"price"`
}

// BuyPointOption offers a half-point package in exchange for worse vig.
// PriceAdd is the number of cents moved toward the house per the package.
type BuyPointOption struct {
	HalfPoints int32 `json:"half_points"`
	PriceAdd   int32 `json:"price_add"`
}

// Quote is a resolved line/price pair for one side of a sub-market, with the
// line expressed side-relative (team 2 sees the mirrored spread).
type Quote struct {
	Line  Line  `json:"line"`
	Price Price `json:"price"`
}

func (q Quote) Equal(o Quote) bool {
	return q.Line == o.Line && q.Price == o.Price
}

// Market is one registry entry: everything currently known about a single
// game period's offerings. Instances handed out by the registry are clones;
// only the registry mutates its own copies.
type Market struct {
	Ref         MarketRef         `json:"ref"`
	Kind        MarketKind        `json:"kind"`
	Status      MarketStatus      `json:"status"`
	HomeTeam    string            `json:"home_team,omitempty"`
	AwayTeam    string            `json:"away_team,omitempty"`
	Spread      *SpreadQuote      `json:"spread,omitempty"`
	MoneyLine   *MoneyLineQuote   `json:"money_line,omitempty"`
	Total       *TotalQuote       `json:"total,omitempty"`
	TeamTotal   *TeamTotalQuote   `json:"team_total,omitempty"`
	Contestants []ContestantQuote `json:"contestants,omitempty"`
	BuyPoints   []BuyPointOption  `json:"buy_points,omitempty"`
	MaxWager    Money             `json:"max_wager"`
	CircledMax  *Money            `json:"circled_max,omitempty"`
	Seq         int64             `json:"seq"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// EffectiveMax returns the house limit in force: the circled limit when the
// market is circled, the standard limit otherwise.
func (m *Market) EffectiveMax() Money {
	if m.CircledMax != nil {
		return *m.CircledMax
	}
	return m.MaxWager
}

func (m *Market) Held() bool {
	return m.Status == MarketStatusHeld
}

// QuoteFor resolves the current quote for one side of a sub-market. The
// second return is false when the market does not offer that selection.
func (m *Market) QuoteFor(sub SubMarket, side Side) (Quote, bool) {
	if !ValidSide(sub, side) {
		return Quote{}, false
	}
	switch sub {
	case SubMarketSpread:
		if m.Spread == nil {
			return Quote{}, false
		}
		if side == SideTeam1 {
			return quoteIfPriced(m.Spread.Points, m.Spread.Team1)
		}
		return quoteIfPriced(-m.Spread.Points, m.Spread.Team2)
	case SubMarketMoneyLine:
		if m.MoneyLine == nil {
			return Quote{}, false
		}
		switch side {
		case SideTeam1:
			return quoteIfPriced(0, m.MoneyLine.Team1)
		case SideTeam2:
			return quoteIfPriced(0, m.MoneyLine.Team2)
		default:
			return quoteIfPriced(0, m.MoneyLine.Draw)
		}
	case SubMarketTotal:
		if m.Total == nil {
			return Quote{}, false
		}
		if side == SideOver {
			return quoteIfPriced(m.Total.Points, m.Total.Over)
		}
		return quoteIfPriced(m.Total.Points, m.Total.Under)
	case SubMarketTeamTotal:
		if m.TeamTotal == nil {
			return Quote{}, false
		}
		switch side {
		case TeamTotalHomeOver:
			return quoteIfPriced(m.TeamTotal.HomePoints, m.TeamTotal.HomeOver)
		case TeamTotalHomeUnder:
			return quoteIfPriced(m.TeamTotal.HomePoints, m.TeamTotal.HomeUnder)
		case TeamTotalAwayOver:
			return quoteIfPriced(m.TeamTotal.AwayPoints, m.TeamTotal.AwayOver)
		default:
			return quoteIfPriced(m.TeamTotal.AwayPoints, m.TeamTotal.AwayUnder)
		}
	case SubMarketContest:
		for _, c := range m.Contestants {
			if c.Position == side {
				return quoteIfPriced(0, c.Price)
			}
		}
		return Quote{}, false
	}
	return Quote{}, false
}

func quoteIfPriced(line Line, p Price) (Quote, bool) {
	if !p.Valid() {
		return Quote{}, false
	}
	return Quote{Line: line, Price: p}, true
}

// IsUnderdog reports whether the side is the market's underdog: priced at or
// above +100 and paying better than its opposite number. Equal plus prices
// make neither side the dog.
func (m *Market) IsUnderdog(sub SubMarket, side Side) bool {
	q, ok := m.QuoteFor(sub, side)
	if !ok || !q.Price.Underdog() {
		return false
	}
	switch sub {
	case SubMarketMoneyLine:
		if side == SideDraw {
			return true
		}
		fallthrough
	case SubMarketSpread, SubMarketTotal, SubMarketTeamTotal:
		opp, ok := m.QuoteFor(sub, oppositeSide(sub, side))
		if !ok {
			return true
		}
		return q.Price > opp.Price
	case SubMarketContest:
		return true
	}
	return false
}

func oppositeSide(sub SubMarket, side Side) Side {
	if sub == SubMarketTeamTotal {
		switch side {
		case TeamTotalHomeOver:
			return TeamTotalHomeUnder
		case TeamTotalHomeUnder:
			return TeamTotalHomeOver
		case TeamTotalAwayOver:
			return TeamTotalAwayUnder
		default:
			return TeamTotalAwayOver
		}
	}
	if side == SideTeam1 {
		return SideTeam2
	}
	return SideTeam1
}

// BuyPointOptionFor returns the offered package for the given number of half
// points, if the market still sells it.
func (m *Market) BuyPointOptionFor(halfPoints int32) (BuyPointOption, bool) {
	for _, o := range m.BuyPoints {
		if o.HalfPoints == halfPoints {
			return o, true
		}
	}
	return BuyPointOption{}, false
}

// Clone deep-copies the market so callers can hold it without racing the
// registry.
func (m *Market) Clone() *Market {
	cp := *m
	if m.Spread != nil {
		s := *m.Spread
		cp.Spread = &s
	}
	if m.MoneyLine != nil {
		ml := *m.MoneyLine
		cp.MoneyLine = &ml
	}
	if m.Total != nil {
		t := *m.Total
		cp.Total = &t
	}
	if m.TeamTotal != nil {
		tt := *m.TeamTotal
		cp.TeamTotal = &tt
	}
	cp.Contestants = slices.Clone(m.Contestants)
	cp.BuyPoints = slices.Clone(m.BuyPoints)
	if m.CircledMax != nil {
		c := *m.CircledMax
		cp.CircledMax = &c
	}
	return &cp
}

// MarketUpdate is one stream event: a partial update against a market. Nil
// fields were not touched by the event; present fields replace their group
// wholesale.
type MarketUpdate struct {
	Ref            MarketRef         `json:"ref"`
	Kind           *MarketKind       `json:"kind,omitempty"`
	Status         *MarketStatus     `json:"status,omitempty"`
	HomeTeam       string            `json:"home_team,omitempty"`
	AwayTeam       string            `json:"away_team,omitempty"`
	Spread         *SpreadQuote      `json:"spread,omitempty"`
	MoneyLine      *MoneyLineQuote   `json:"money_line,omitempty"`
	Total          *TotalQuote       `json:"total,omitempty"`
	TeamTotal      *TeamTotalQuote   `json:"team_total,omitempty"`
	Contestants    []ContestantQuote `json:"contestants,omitempty"`
	BuyPoints      []BuyPointOption  `json:"buy_points,omitempty"`
	ClearBuyPoints bool              `json:"clear_buy_points,omitempty"`
	MaxWager       *Money            `json:"max_wager,omitempty"`
	CircledMax     *Money            `json:"circled_max,omitempty"`
	ClearCircled   bool              `json:"clear_circled,omitempty"`
	Seq            int64             `json:"seq"`
	CorrelationID  string            `json:"correlation_id,omitempty"`
	At             time.Time         `json:"at"`
}

// TouchesOfferings reports whether the update changes anything a held leg
// could reference, as opposed to pure metadata.
func (u MarketUpdate) TouchesOfferings() bool {
	return u.Status != nil || u.Spread != nil || u.MoneyLine != nil ||
		u.Total != nil || u.TeamTotal != nil || u.Contestants != nil ||
		u.BuyPoints != nil || u.ClearBuyPoints ||
		u.MaxWager != nil || u.CircledMax != nil || u.ClearCircled
}

// NewMarketFromUpdate seeds a registry entry from the first event seen for a
// ref.
func NewMarketFromUpdate(u MarketUpdate) *Market {
	m := &Market{
		Ref:    u.Ref,
		Kind:   MarketKindGame,
		Status: MarketStatusOpen,
	}
	m.ApplyUpdate(u)
	return m
}

// ApplyUpdate merges the event into the market, preserving groups the event
// did not touch. Sequence ordering is the registry's concern, not the
// entity's.
func (m *Market) ApplyUpdate(u MarketUpdate) {
	if u.Kind != nil {
		m.Kind = *u.Kind
	}
	if u.Status != nil {
		m.Status = *u.Status
	}
	if u.HomeTeam != "" {
		m.HomeTeam = u.HomeTeam
	}
	if u.AwayTeam != "" {
		m.AwayTeam = u.AwayTeam
	}
	if u.Spread != nil {
		s := *u.Spread
		m.Spread = &s
	}
	if u.MoneyLine != nil {
		ml := *u.MoneyLine
		m.MoneyLine = &ml
	}
	if u.Total != nil {
		t := *u.Total
		m.Total = &t
	}
	if u.TeamTotal != nil {
		tt := *u.TeamTotal
		m.TeamTotal = &tt
	}
	if u.Contestants != nil {
		m.Contestants = slices.Clone(u.Contestants)
	}
	if u.ClearBuyPoints {
		m.BuyPoints = nil
	} else if u.BuyPoints != nil {
		m.BuyPoints = slices.Clone(u.BuyPoints)
	}
	if u.MaxWager != nil {
		m.MaxWager = *u.MaxWager
	}
	if u.ClearCircled {
		m.CircledMax = nil
	} else if u.CircledMax != nil {
		c := *u.CircledMax
		m.CircledMax = &c
	}
	m.Seq = u.Seq
	if !u.At.IsZero() {
		m.UpdatedAt = u.At
	}
}
