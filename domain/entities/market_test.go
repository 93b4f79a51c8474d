package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMarket() *Market {
	return &Market{
		Ref:      MarketRef{GameID: 401, PeriodNumber: 0},
		Kind:     MarketKindGame,
		Status:   MarketStatusOpen,
		HomeTeam: "Wolves",
		AwayTeam: "Hawks",
		Spread: &SpreadQuote{
			Points: -3.5,
			Team1:  -110,
			Team2:  -110,
		},
		MoneyLine: &MoneyLineQuote{
			Team1: -170,
			Team2: 150,
		},
		Total: &TotalQuote{
			Points: 44.5,
			Over:   -105,
			Under:  -115,
		},
		TeamTotal: &TeamTotalQuote{
			HomePoints: 24.5,
			HomeOver:   -115,
			HomeUnder:  -105,
			AwayPoints: 20.5,
			AwayOver:   -110,
			AwayUnder:  -110,
		},
		BuyPoints: []BuyPointOption{
			{HalfPoints: 1, PriceAdd: 10},
			{HalfPoints: 2, PriceAdd: 20},
		},
		MaxWager:  100000,
		Seq:       7,
		UpdatedAt: time.Now(),
	}
}

func TestMarket_QuoteFor(t *testing.T) {
	t.Parallel()

	m := testMarket()

	tests := []struct {
		name     string
		sub      SubMarket
		side     Side
		wantOK   bool
		wantLine Line
		wantPx   Price
	}{
		{
			name:     "spread team 1 takes the listed line",
			sub:      SubMarketSpread,
			side:     SideTeam1,
			wantOK:   true,
			wantLine: -3.5,
			wantPx:   -110,
		},
		{
			name:     "spread team 2 takes the mirrored line",
			sub:      SubMarketSpread,
			side:     SideTeam2,
			wantOK:   true,
			wantLine: 3.5,
			wantPx:   -110,
		},
		{
			name:   "moneyline underdog",
			sub:    SubMarketMoneyLine,
			side:   SideTeam2,
			wantOK: true,
			wantPx: 150,
		},
		{
			name:   "moneyline draw not offered",
			sub:    SubMarketMoneyLine,
			side:   SideDraw,
			wantOK: false,
		},
		{
			name:     "total under",
			sub:      SubMarketTotal,
			side:     SideUnder,
			wantOK:   true,
			wantLine: 44.5,
			wantPx:   -115,
		},
		{
			name:     "team total away over",
			sub:      SubMarketTeamTotal,
			side:     TeamTotalAwayOver,
			wantOK:   true,
			wantLine: 20.5,
			wantPx:   -110,
		},
		{
			name:   "invalid side for sub-market",
			sub:    SubMarketTotal,
			side:   SideDraw,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q, ok := m.QuoteFor(tt.sub, tt.side)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantLine, q.Line)
				assert.Equal(t, tt.wantPx, q.Price)
			}
		})
	}
}

func TestMarket_QuoteFor_MissingGroups(t *testing.T) {
	t.Parallel()

	m := &Market{Ref: MarketRef{GameID: 1}, Status: MarketStatusOpen}

	_, ok := m.QuoteFor(SubMarketSpread, SideTeam1)
	assert.False(t, ok)

	_, ok = m.QuoteFor(SubMarketTotal, SideOver)
	assert.False(t, ok)
}

func TestMarket_QuoteFor_Contest(t *testing.T) {
	t.Parallel()

	m := &Market{
		Ref:    MarketRef{GameID: 99},
		Kind:   MarketKindContest,
		Status: MarketStatusOpen,
		Contestants: []ContestantQuote{
			{Position: 1, Name: "Entrant A", Price: 450},
			{Position: 2, Name: "Entrant B", Price: -130},
		},
	}

	q, ok := m.QuoteFor(SubMarketContest, 2)
	require.True(t, ok)
	assert.Equal(t, Price(-130), q.Price)

	_, ok = m.QuoteFor(SubMarketContest, 7)
	assert.False(t, ok)
}

func TestMarket_IsUnderdog(t *testing.T) {
	t.Parallel()

	m := testMarket()

	tests := []struct {
		name string
		sub  SubMarket
		side Side
		want bool
	}{
		{
			name: "moneyline plus price is the dog",
			sub:  SubMarketMoneyLine,
			side: SideTeam2,
			want: true,
		},
		{
			name: "moneyline favorite is not",
			sub:  SubMarketMoneyLine,
			side: SideTeam1,
			want: false,
		},
		{
			name: "spread at -110 both ways has no dog",
			sub:  SubMarketSpread,
			side: SideTeam1,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, m.IsUnderdog(tt.sub, tt.side))
		})
	}
}

func TestMarket_IsUnderdog_EqualPlusPrices(t *testing.T) {
	t.Parallel()

	m := testMarket()
	m.MoneyLine = &MoneyLineQuote{Team1: 100, Team2: 100}

	assert.False(t, m.IsUnderdog(SubMarketMoneyLine, SideTeam1))
	assert.False(t, m.IsUnderdog(SubMarketMoneyLine, SideTeam2))
}

func TestMarket_EffectiveMax(t *testing.T) {
	t.Parallel()

	m := testMarket()
	assert.Equal(t, Money(100000), m.EffectiveMax())

	circled := Money(25000)
	m.CircledMax = &circled
	assert.Equal(t, Money(25000), m.EffectiveMax())
}

func TestMarket_ApplyUpdate_PartialMerge(t *testing.T) {
	t.Parallel()

	m := testMarket()
	held := MarketStatusHeld

	m.ApplyUpdate(MarketUpdate{
		Ref:    m.Ref,
		Status: &held,
		Total:  &TotalQuote{Points: 45.5, Over: -110, Under: -110},
		Seq:    8,
	})

	// Touched groups replaced.
	assert.Equal(t, MarketStatusHeld, m.Status)
	assert.Equal(t, Line(45.5), m.Total.Points)
	assert.Equal(t, int64(8), m.Seq)

	// Untouched groups preserved.
	require.NotNil(t, m.Spread)
	assert.Equal(t, Line(-3.5), m.Spread.Points)
	require.NotNil(t, m.MoneyLine)
	assert.Equal(t, Price(-170), m.MoneyLine.Team1)
	assert.Len(t, m.BuyPoints, 2)
}

func TestMarket_ApplyUpdate_CircledAndCleared(t *testing.T) {
	t.Parallel()

	m := testMarket()
	circled := Money(30000)

	m.ApplyUpdate(MarketUpdate{Ref: m.Ref, CircledMax: &circled, Seq: 8})
	require.NotNil(t, m.CircledMax)
	assert.Equal(t, Money(30000), *m.CircledMax)

	m.ApplyUpdate(MarketUpdate{Ref: m.Ref, ClearCircled: true, Seq: 9})
	assert.Nil(t, m.CircledMax)
}

func TestMarket_ApplyUpdate_ClearBuyPoints(t *testing.T) {
	t.Parallel()

	m := testMarket()
	m.ApplyUpdate(MarketUpdate{Ref: m.Ref, ClearBuyPoints: true, Seq: 8})
	assert.Empty(t, m.BuyPoints)
}

func TestMarket_Clone_Independent(t *testing.T) {
	t.Parallel()

	m := testMarket()
	cp := m.Clone()

	cp.Spread.Points = 99
	cp.BuyPoints[0].HalfPoints = 9
	circled := Money(1)
	cp.CircledMax = &circled

	assert.Equal(t, Line(-3.5), m.Spread.Points)
	assert.Equal(t, int32(1), m.BuyPoints[0].HalfPoints)
	assert.Nil(t, m.CircledMax)
}

func TestNewMarketFromUpdate(t *testing.T) {
	t.Parallel()

	u := MarketUpdate{
		Ref:    MarketRef{GameID: 55, PeriodNumber: 1},
		Spread: &SpreadQuote{Points: -7, Team1: -110, Team2: -110},
		Seq:    1,
		At:     time.Now(),
	}

	m := NewMarketFromUpdate(u)
	assert.Equal(t, u.Ref, m.Ref)
	assert.Equal(t, MarketStatusOpen, m.Status)
	require.NotNil(t, m.Spread)
	assert.Equal(t, Line(-7), m.Spread.Points)
}
