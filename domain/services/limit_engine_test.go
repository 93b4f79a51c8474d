package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"betslip/domain"
	"betslip/domain/entities"
)

func intPtr(v int) *int { return &v }

// svcTables is the limit reference data shared by the service tests.
func svcTables() *entities.LimitTables {
	return &entities.LimitTables{
		ParlayLimits: []entities.ParlayLimit{
			{Teams: 2, MaxDogs: intPtr(2)},
			{Teams: 3, MaxDogs: intPtr(1), MaxTotals: intPtr(2), MaxMoneyLines: intPtr(2)},
		},
		Teasers: []entities.TeaserSpec{
			{
				Name:     "6 Point",
				Points:   6,
				MinPicks: 2,
				MaxPicks: 4,
				PayCard: []entities.TeaserPayRow{
					{Picks: 2, RiskUnits: 110, WinUnits: 100},
					{Picks: 3, RiskUnits: 100, WinUnits: 180},
					{Picks: 4, RiskUnits: 100, WinUnits: 300},
				},
			},
		},
		Picks: map[entities.WagerType]entities.PickRange{
			entities.WagerTypeParlay: {Min: 2, Max: 8},
			entities.WagerTypeTeaser: {Min: 2, Max: 4},
		},
		OpenSpotMax:      4,
		MaxPayout:        entities.Money(10_000_000),
		MaxFreePlayPrice: entities.Price(200),
	}
}

// gameMarket offers a spread, a total and a money line with team 2 the clear
// underdog, plus one half-point package.
func gameMarket(gameID int64) *entities.Market {
	return &entities.Market{
		Ref:       entities.MarketRef{GameID: gameID, PeriodNumber: 0},
		Kind:      entities.MarketKindGame,
		Status:    entities.MarketStatusOpen,
		HomeTeam:  "Home",
		AwayTeam:  "Away",
		Spread:    &entities.SpreadQuote{Points: -3.5, Team1: -110, Team2: -110},
		MoneyLine: &entities.MoneyLineQuote{Team1: -170, Team2: 150},
		Total:     &entities.TotalQuote{Points: 42.5, Over: -110, Under: -110},
		BuyPoints: []entities.BuyPointOption{{HalfPoints: 1, PriceAdd: 10}, {HalfPoints: 2, PriceAdd: 25}},
		MaxWager:  entities.Money(1_000_000),
		Seq:       1,
		UpdatedAt: time.Unix(1700000000, 0),
	}
}

func chainLeg(gameID int64, price entities.Price, risk entities.Money) *entities.WagerItem {
	it := entities.NewWagerItem(
		entities.MarketRef{GameID: gameID, PeriodNumber: 0},
		entities.SubMarketSpread,
		entities.SideTeam1,
		entities.Quote{Line: -3.5, Price: price},
		entities.Money(1_000_000),
		time.Unix(1700000000, 0),
	)
	if risk > 0 {
		it.SetRisk(risk)
	}
	return it
}

func chainTicket(wt entities.WagerType, legs ...*entities.WagerItem) *entities.Ticket {
	t := entities.NewTicket(wt, time.Unix(1700000000, 0))
	for _, leg := range legs {
		t.Add(leg)
	}
	return t
}

func dogLeg(gameID int64) *entities.WagerItem {
	return entities.NewWagerItem(
		entities.MarketRef{GameID: gameID, PeriodNumber: 0},
		entities.SubMarketMoneyLine,
		entities.SideTeam2,
		entities.Quote{Price: 150},
		entities.Money(1_000_000),
		time.Unix(1700000000, 0),
	)
}

func TestLimitEngine_CheckEligibility_MaxDogs(t *testing.T) {
	t.Parallel()

	registry := NewMarketRegistry()
	registry.Prime([]*entities.Market{gameMarket(1), gameMarket(2), gameMarket(3)})
	engine := NewLimitEngine(registry, svcTables())

	ticket := chainTicket(entities.WagerTypeParlay, dogLeg(1), dogLeg(2))

	// Third pick lands on the 3-team row, which allows a single dog.
	err := engine.CheckEligibility(ticket, dogLeg(3), 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
	assert.Contains(t, err.Error(), "underdog")
}

func TestLimitEngine_CheckEligibility_PassesWithinRow(t *testing.T) {
	t.Parallel()

	registry := NewMarketRegistry()
	registry.Prime([]*entities.Market{gameMarket(1), gameMarket(2)})
	engine := NewLimitEngine(registry, svcTables())

	// Two dogs fit the 2-team row.
	ticket := chainTicket(entities.WagerTypeParlay, dogLeg(1))
	assert.NoError(t, engine.CheckEligibility(ticket, dogLeg(2), 0, nil))
}

func TestLimitEngine_CheckEligibility_RowOverride(t *testing.T) {
	t.Parallel()

	registry := NewMarketRegistry()
	registry.Prime([]*entities.Market{gameMarket(1), gameMarket(2)})
	engine := NewLimitEngine(registry, svcTables())

	ticket := chainTicket(entities.WagerTypeParlay, dogLeg(1))

	// A fresher remote row forbids dogs entirely at this size.
	row := &entities.ParlayLimit{Teams: 2, MaxDogs: intPtr(0)}
	err := engine.CheckEligibility(ticket, dogLeg(2), 2, row)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
}

func TestLimitEngine_CheckEligibility_IgnoresNonAccumulators(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())
	ticket := chainTicket(entities.WagerTypeStraight, dogLeg(1), dogLeg(2))
	assert.NoError(t, engine.CheckEligibility(ticket, dogLeg(3), 0, nil))
}

func TestLimitEngine_PreFilterLimit(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())
	m := gameMarket(1)
	m.MaxWager = 50_000

	ticket := chainTicket(entities.WagerTypeParlay, dogLeg(1))
	ticket.TotalRisk = 40_000
	assert.NoError(t, engine.PreFilterLimit(ticket, m))

	ticket.TotalToWin = 60_000
	err := engine.PreFilterLimit(ticket, m)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)

	// Circled markets bite harder.
	circled := entities.Money(10_000)
	m.CircledMax = &circled
	ticket.TotalToWin = 0
	ticket.TotalRisk = 20_000
	assert.Error(t, engine.PreFilterLimit(ticket, m))
}

func TestLimitEngine_CheckFreePlayPrice(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	assert.NoError(t, engine.CheckFreePlayPrice(-110))
	assert.NoError(t, engine.CheckFreePlayPrice(200))

	err := engine.CheckFreePlayPrice(250)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFreePlayPrice)

	// A zero ceiling disables the check.
	open := svcTables()
	open.MaxFreePlayPrice = 0
	assert.NoError(t, NewLimitEngine(NewMarketRegistry(), open).CheckFreePlayPrice(900))
}

func TestLimitEngine_RoundRobinOptions(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	ticket := chainTicket(entities.WagerTypeParlay, dogLeg(1), dogLeg(2), dogLeg(3), dogLeg(4))
	opts := engine.RoundRobinOptions(ticket)
	require.Len(t, opts, 3)
	assert.Equal(t, entities.RoundRobinSelection{GroupSize: 4, Combos: 1}, opts[0])
	assert.Equal(t, entities.RoundRobinSelection{GroupSize: 2, Combos: 6}, opts[1])
	assert.Equal(t, entities.RoundRobinSelection{GroupSize: 3, Combos: 4}, opts[2])

	// Open spots rule out round robins.
	ticket.OpenSpots = 1
	assert.Nil(t, engine.RoundRobinOptions(ticket))

	// A single leg has nothing to group.
	assert.Nil(t, engine.RoundRobinOptions(chainTicket(entities.WagerTypeParlay, dogLeg(1))))
}

func TestLimitEngine_OpenSpotChoices(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())
	picks := entities.PickRange{Min: 2, Max: 8}

	// Two confirmed picks: 1..(8-2+1) truncated to the reference ceiling 4.
	ticket := chainTicket(entities.WagerTypeParlay, dogLeg(1), dogLeg(2))
	assert.Equal(t, []int{1, 2, 3, 4}, engine.OpenSpotChoices(ticket, picks))

	// Seven confirmed picks leave room for 8-7+1 = 2 spots.
	full := chainTicket(entities.WagerTypeParlay,
		dogLeg(1), dogLeg(2), dogLeg(3), dogLeg(4), dogLeg(5), dogLeg(6), dogLeg(7))
	assert.Equal(t, []int{1, 2}, engine.OpenSpotChoices(full, picks))

	// A non-identity round robin disables open spots.
	ticket.RoundRobin = &entities.RoundRobinSelection{GroupSize: 2, Combos: 1}
	assert.Equal(t, []int{1, 2, 3, 4}, engine.OpenSpotChoices(ticket, picks))
	ticket.RoundRobin = &entities.RoundRobinSelection{GroupSize: 2, Combos: 3}
	assert.Nil(t, engine.OpenSpotChoices(ticket, picks))

	// Straight slips never offer spots.
	assert.Nil(t, engine.OpenSpotChoices(chainTicket(entities.WagerTypeStraight, dogLeg(1)), picks))
}

func TestLimitEngine_ExpandRoundRobin(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	ticket := chainTicket(entities.WagerTypeParlay,
		chainLeg(1, -110, 0), chainLeg(2, -110, 0), chainLeg(3, 150, 0))
	ticket.RoundRobin = &entities.RoundRobinSelection{GroupSize: 2, Combos: 3}
	ticket.TotalRisk = 30_000

	combos, err := engine.ExpandRoundRobin(ticket, 0)
	require.NoError(t, err)
	require.Len(t, combos, 3)

	for _, c := range combos {
		assert.Equal(t, entities.Money(10_000), c.Risk)
		assert.Len(t, c.LegIndexes, 2)
		assert.Greater(t, int64(c.ToWin), int64(0))
	}
	// The two-favorite pair pays the least, the pairs with the dog more.
	assert.Equal(t, []int{0, 1}, combos[0].LegIndexes)
	assert.Less(t, int64(combos[0].ToWin), int64(combos[1].ToWin))

	// No grouping selected is an error.
	ticket.RoundRobin = nil
	_, err = engine.ExpandRoundRobin(ticket, 0)
	assert.ErrorIs(t, err, domain.ErrWagerTypeConflict)
}

func TestLimitEngine_ComputeTotals_StraightSumsLegs(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())
	ticket := chainTicket(entities.WagerTypeStraight,
		chainLeg(1, -110, 11_000), chainLeg(2, 150, 10_000))

	risk, toWin, err := engine.ComputeTotals(ticket, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, entities.Money(21_000), risk)
	// 11000 at -110 wins 10000; 10000 at +150 wins 15000.
	assert.Equal(t, entities.Money(25_000), toWin)
}

func TestLimitEngine_ComputeTotals_Parlay(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())
	ticket := chainTicket(entities.WagerTypeParlay, chainLeg(1, -110, 0), chainLeg(2, -110, 0))
	ticket.TotalRisk = 10_000

	risk, toWin, err := engine.ComputeTotals(ticket, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, entities.Money(10_000), risk)
	// (210/110)^2 - 1 = 2.6446... times the stake.
	assert.Equal(t, entities.Money(26_446), toWin)
}

func TestLimitEngine_ComputeTotals_ParlayCapsAtMaxPayout(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())
	ticket := chainTicket(entities.WagerTypeParlay, chainLeg(1, -110, 0), chainLeg(2, -110, 0))
	ticket.TotalRisk = 10_000

	_, toWin, err := engine.ComputeTotals(ticket, nil, 20_000)
	require.NoError(t, err)
	assert.Equal(t, entities.Money(20_000), toWin)
}

func TestLimitEngine_ComputeTotals_TeaserPayCard(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	ticket := chainTicket(entities.WagerTypeTeaser, chainLeg(1, -110, 0), chainLeg(2, -110, 0))
	ticket.TeaserName = "6 Point"
	ticket.TotalRisk = 11_000

	risk, toWin, err := engine.ComputeTotals(ticket, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, entities.Money(11_000), risk)
	// Risk 110 to win 100.
	assert.Equal(t, entities.Money(10_000), toWin)
}

func TestLimitEngine_ComputeTotals_TeaserDogFloor(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	ticket := chainTicket(entities.WagerTypeTeaser, chainLeg(1, -110, 0), chainLeg(2, 120, 0))
	ticket.TeaserName = "6 Point"
	ticket.TotalRisk = 11_000

	_, toWin, err := engine.ComputeTotals(ticket, nil, 0)
	require.NoError(t, err)
	// The +120 leg implies 13200 on its own, beating the card's 10000.
	assert.Equal(t, entities.Money(13_200), toWin)
}

func TestLimitEngine_ComputeTotals_TeaserUnknown(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())
	ticket := chainTicket(entities.WagerTypeTeaser, chainLeg(1, -110, 0), chainLeg(2, -110, 0))
	ticket.TeaserName = "no such card"
	ticket.TotalRisk = 11_000

	_, _, err := engine.ComputeTotals(ticket, nil, 0)
	assert.ErrorIs(t, err, domain.ErrTeaserUnknown)
}

func TestLimitEngine_ComputeTotals_Chains(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	// If-bet exposure is the opening stake; wins collect per leg.
	ifBet := chainTicket(entities.WagerTypeIfWinOnly,
		chainLeg(1, -110, 10_000), chainLeg(2, 150, 5_000))
	risk, toWin, err := engine.ComputeTotals(ifBet, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, entities.Money(10_000), risk)
	assert.Equal(t, entities.Money(9_090+7_500), toWin)

	// An action reverse exposes both stakes and collects both chains.
	reverse := chainTicket(entities.WagerTypeActionReverse,
		chainLeg(1, -110, 10_000), chainLeg(2, -110, 10_000))
	risk, toWin, err = engine.ComputeTotals(reverse, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, entities.Money(20_000), risk)
	assert.Equal(t, entities.Money(2*(9_090+9_090)), toWin)
}

func TestLimitEngine_ApplyChainLimits_WinOnlyBudget(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	first := chainLeg(1, -110, 10_000) // wins 9090
	second := chainLeg(2, -120, 0)
	ticket := chainTicket(entities.WagerTypeIfWinOnly, first, second)

	engine.ApplyChainLimits(ticket)

	// Budget 19090 converted at -120: 19090 * 100 / 120.
	assert.Equal(t, entities.Money(15_908), second.MaxWagerLimit)
	require.NotNil(t, second.OrigMaxWagerLimit)
	assert.Equal(t, entities.Money(1_000_000), *second.OrigMaxWagerLimit)
}

func TestLimitEngine_ApplyChainLimits_WinOrPushBudget(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	first := chainLeg(1, -110, 10_000)
	second := chainLeg(2, -120, 0)
	ticket := chainTicket(entities.WagerTypeIfWinOrPush, first, second)

	engine.ApplyChainLimits(ticket)

	// Only the returned stake funds the next leg: 10000 * 100 / 120.
	assert.Equal(t, entities.Money(8_333), second.MaxWagerLimit)
}

func TestLimitEngine_ApplyChainLimits_DogLegPassesBudgetThrough(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	first := chainLeg(1, -110, 10_000)
	second := chainLeg(2, 150, 0)
	ticket := chainTicket(entities.WagerTypeIfWinOnly, first, second)

	engine.ApplyChainLimits(ticket)

	// Risk at a plus price stays in risk units.
	assert.Equal(t, entities.Money(19_090), second.MaxWagerLimit)
}

func TestLimitEngine_ApplyChainLimits_OwnMarketLimitWins(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	first := chainLeg(1, -110, 10_000)
	second := chainLeg(2, -120, 0)
	second.MaxWagerLimit = 5_000
	ticket := chainTicket(entities.WagerTypeIfWinOnly, first, second)

	engine.ApplyChainLimits(ticket)

	assert.Equal(t, entities.Money(5_000), second.MaxWagerLimit)
}

func TestLimitEngine_ApplyChainLimits_MarksAndRecovers(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	first := chainLeg(1, -110, 10_000)
	second := chainLeg(2, -120, 20_000) // entry 16666 against the 15908 cap
	ticket := chainTicket(entities.WagerTypeIfWinOnly, first, second)

	engine.ApplyChainLimits(ticket)
	assert.False(t, second.IsOK)
	assert.Equal(t, "Amount Exceeded", second.StatusReason)
	// Marked, not rejected: amounts stay.
	assert.True(t, second.HasAmounts())

	// Raising the opening stake widens the budget and recovers the leg.
	first.SetRisk(20_000)
	engine.ApplyChainLimits(ticket)
	assert.True(t, second.IsOK)
	assert.Empty(t, second.StatusReason)
}

func TestLimitEngine_ApplyChainLimits_ReversePairsBothWays(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	a := chainLeg(1, -110, 10_000)
	b := chainLeg(2, -110, 10_000)
	ticket := chainTicket(entities.WagerTypeActionReverse, a, b)

	engine.ApplyChainLimits(ticket)

	// Each leg is capped by the other's stake converted at its own price;
	// equal stakes sit exactly at the cap.
	assert.Equal(t, entities.Money(9_090), a.MaxWagerLimit)
	assert.Equal(t, entities.Money(9_090), b.MaxWagerLimit)
	assert.True(t, a.IsOK)
	assert.True(t, b.IsOK)

	// Raising one side pushes it past the other's funding.
	b.SetRisk(12_000)
	engine.ApplyChainLimits(ticket)
	assert.True(t, a.IsOK)
	assert.False(t, b.IsOK)
	assert.Equal(t, "Amount Exceeded", b.StatusReason)
}

func TestLimitEngine_ApplyChainLimits_RestoresOnTypeChange(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	first := chainLeg(1, -110, 10_000)
	second := chainLeg(2, -120, 0)
	ticket := chainTicket(entities.WagerTypeIfWinOnly, first, second)

	engine.ApplyChainLimits(ticket)
	require.NotNil(t, second.OrigMaxWagerLimit)

	ticket.WagerType = entities.WagerTypeStraight
	engine.ApplyChainLimits(ticket)
	assert.Equal(t, entities.Money(1_000_000), second.MaxWagerLimit)
	assert.Nil(t, second.OrigMaxWagerLimit)
}

func TestLimitEngine_CheckChainPost(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	first := chainLeg(1, -110, 10_000) // payout 19090
	second := chainLeg(2, -120, 19_090)
	ticket := chainTicket(entities.WagerTypeIfWinOnly, first, second)

	// Raw risk against the preceding payout, no conversion.
	assert.NoError(t, engine.CheckChainPost(ticket, false))

	second.SetRisk(19_091)
	err := engine.CheckChainPost(ticket, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)

	// Unrestricted credit skips the precondition.
	assert.NoError(t, engine.CheckChainPost(ticket, true))

	// Win-or-push only returns the stake.
	push := chainTicket(entities.WagerTypeIfWinOrPush,
		chainLeg(1, -110, 10_000), chainLeg(2, -120, 10_000))
	assert.NoError(t, engine.CheckChainPost(push, false))
	push.Items[1].SetRisk(10_001)
	assert.Error(t, engine.CheckChainPost(push, false))
}

func TestLimitEngine_CheckChainPost_ActionReverse(t *testing.T) {
	t.Parallel()

	engine := NewLimitEngine(NewMarketRegistry(), svcTables())

	ticket := chainTicket(entities.WagerTypeActionReverse,
		chainLeg(1, -110, 10_000), chainLeg(2, -110, 10_000))
	assert.NoError(t, engine.CheckChainPost(ticket, false))

	ticket.Items[1].SetRisk(9_000)
	err := engine.CheckChainPost(ticket, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)

	three := chainTicket(entities.WagerTypeActionReverse,
		chainLeg(1, -110, 10_000), chainLeg(2, -110, 10_000), chainLeg(3, -110, 10_000))
	assert.ErrorIs(t, engine.CheckChainPost(three, false), domain.ErrPickCount)
}
