package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"betslip/domain"
	"betslip/domain/entities"
)

func testTime() time.Time { return time.Unix(1700000000, 0) }

func spreadUpdate(gameID, seq int64, points entities.Line, team1 entities.Price) entities.MarketUpdate {
	return entities.MarketUpdate{
		Ref:    entities.MarketRef{GameID: gameID},
		Spread: &entities.SpreadQuote{Points: points, Team1: team1, Team2: -110},
		Seq:    seq,
	}
}

func TestMarketRegistry_Apply_FirstSight(t *testing.T) {
	t.Parallel()

	r := NewMarketRegistry()

	m, applied := r.Apply(spreadUpdate(1, 5, -3.5, -110))
	require.True(t, applied)
	require.NotNil(t, m)
	assert.Equal(t, entities.MarketStatusOpen, m.Status)
	assert.Equal(t, int64(5), m.Seq)
	assert.Equal(t, 1, r.Len())

	q, err := r.Quote(entities.MarketRef{GameID: 1}, entities.SubMarketSpread, entities.SideTeam1)
	require.NoError(t, err)
	assert.Equal(t, entities.Quote{Line: -3.5, Price: -110}, q)
}

func TestMarketRegistry_Apply_DropsStaleSequence(t *testing.T) {
	t.Parallel()

	r := NewMarketRegistry()
	_, applied := r.Apply(spreadUpdate(1, 5, -3.5, -110))
	require.True(t, applied)

	// Behind the cache.
	m, applied := r.Apply(spreadUpdate(1, 4, -4.5, -110))
	assert.False(t, applied)
	assert.Nil(t, m)

	// Same sequence replays are dropped too.
	_, applied = r.Apply(spreadUpdate(1, 5, -4.5, -110))
	assert.False(t, applied)

	q, err := r.Quote(entities.MarketRef{GameID: 1}, entities.SubMarketSpread, entities.SideTeam1)
	require.NoError(t, err)
	assert.Equal(t, entities.Line(-3.5), q.Line)

	// Newer wins.
	m, applied = r.Apply(spreadUpdate(1, 6, -4.5, -120))
	require.True(t, applied)
	assert.Equal(t, entities.Line(-4.5), m.Spread.Points)

	// Unsequenced feeds always apply.
	_, applied = r.Apply(spreadUpdate(1, 0, -5.5, -110))
	assert.True(t, applied)
}

func TestMarketRegistry_Apply_MergesGroupsWholesale(t *testing.T) {
	t.Parallel()

	r := NewMarketRegistry()
	r.Prime([]*entities.Market{gameMarket(1)})

	// A spread-only event leaves the other offerings untouched.
	m, applied := r.Apply(spreadUpdate(1, 2, -4.5, -120))
	require.True(t, applied)
	assert.Equal(t, entities.Line(-4.5), m.Spread.Points)
	require.NotNil(t, m.Total)
	assert.Equal(t, entities.Line(42.5), m.Total.Points)
	require.NotNil(t, m.MoneyLine)

	// A status flip arrives without any quote groups.
	held := entities.MarketStatusHeld
	m, applied = r.Apply(entities.MarketUpdate{
		Ref:    entities.MarketRef{GameID: 1},
		Status: &held,
		Seq:    3,
	})
	require.True(t, applied)
	assert.True(t, m.Held())
	assert.Equal(t, entities.Line(-4.5), m.Spread.Points)
}

func TestMarketRegistry_Prime(t *testing.T) {
	t.Parallel()

	r := NewMarketRegistry()

	installed := r.Prime([]*entities.Market{gameMarket(1), gameMarket(2), nil})
	assert.Equal(t, 2, installed)
	assert.Equal(t, 2, r.Len())

	// A snapshot at or behind the live sequence is ignored.
	stale := gameMarket(1)
	stale.MaxWager = 1
	assert.Equal(t, 0, r.Prime([]*entities.Market{stale}))
	m, ok := r.Lookup(entities.MarketRef{GameID: 1})
	require.True(t, ok)
	assert.Equal(t, entities.Money(1_000_000), m.MaxWager)

	// A newer snapshot replaces the entry.
	fresh := gameMarket(1)
	fresh.Seq = 9
	fresh.MaxWager = 2_000_000
	assert.Equal(t, 1, r.Prime([]*entities.Market{fresh}))
	m, _ = r.Lookup(entities.MarketRef{GameID: 1})
	assert.Equal(t, entities.Money(2_000_000), m.MaxWager)
}

func TestMarketRegistry_Quote(t *testing.T) {
	t.Parallel()

	held := gameMarket(2)
	held.Status = entities.MarketStatusHeld
	threeWay := gameMarket(3)
	threeWay.MoneyLine = &entities.MoneyLineQuote{Team1: -170, Team2: 150, Draw: 0}

	r := NewMarketRegistry()
	r.Prime([]*entities.Market{gameMarket(1), held, threeWay})

	tests := []struct {
		name    string
		ref     entities.MarketRef
		sub     entities.SubMarket
		side    entities.Side
		want    entities.Quote
		wantErr error
	}{
		{
			name: "spread team two sees the mirrored line",
			ref:  entities.MarketRef{GameID: 1},
			sub:  entities.SubMarketSpread,
			side: entities.SideTeam2,
			want: entities.Quote{Line: 3.5, Price: -110},
		},
		{
			name: "money line dog",
			ref:  entities.MarketRef{GameID: 1},
			sub:  entities.SubMarketMoneyLine,
			side: entities.SideTeam2,
			want: entities.Quote{Price: 150},
		},
		{
			name:    "unknown market",
			ref:     entities.MarketRef{GameID: 99},
			sub:     entities.SubMarketSpread,
			side:    entities.SideTeam1,
			wantErr: domain.ErrMarketNotFound,
		},
		{
			name:    "held market offers nothing",
			ref:     entities.MarketRef{GameID: 2},
			sub:     entities.SubMarketSpread,
			side:    entities.SideTeam1,
			wantErr: domain.ErrQuoteUnavailable,
		},
		{
			name:    "sub-market not offered",
			ref:     entities.MarketRef{GameID: 1},
			sub:     entities.SubMarketTeamTotal,
			side:    entities.TeamTotalHomeOver,
			wantErr: domain.ErrQuoteUnavailable,
		},
		{
			name:    "unpriced draw",
			ref:     entities.MarketRef{GameID: 3},
			sub:     entities.SubMarketMoneyLine,
			side:    entities.SideDraw,
			wantErr: domain.ErrQuoteUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q, err := r.Quote(tt.ref, tt.sub, tt.side)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
		})
	}
}

func TestMarketRegistry_LookupReturnsClones(t *testing.T) {
	t.Parallel()

	r := NewMarketRegistry()
	r.Prime([]*entities.Market{gameMarket(1)})

	m, ok := r.Lookup(entities.MarketRef{GameID: 1})
	require.True(t, ok)
	m.Spread.Points = -99
	m.MaxWager = 0

	again, _ := r.Lookup(entities.MarketRef{GameID: 1})
	assert.Equal(t, entities.Line(-3.5), again.Spread.Points)
	assert.Equal(t, entities.Money(1_000_000), again.MaxWager)
}

func TestMarketRegistry_IsUnderdog(t *testing.T) {
	t.Parallel()

	r := NewMarketRegistry()
	r.Prime([]*entities.Market{gameMarket(1)})

	dog := entities.NewWagerItem(entities.MarketRef{GameID: 1}, entities.SubMarketMoneyLine,
		entities.SideTeam2, entities.Quote{Price: 150}, 0, testTime())
	fav := entities.NewWagerItem(entities.MarketRef{GameID: 1}, entities.SubMarketMoneyLine,
		entities.SideTeam1, entities.Quote{Price: -170}, 0, testTime())

	assert.True(t, r.IsUnderdog(dog))
	assert.False(t, r.IsUnderdog(fav))

	// With the market gone the leg's own snapshot price decides.
	orphanDog := entities.NewWagerItem(entities.MarketRef{GameID: 99}, entities.SubMarketMoneyLine,
		entities.SideTeam2, entities.Quote{Price: 120}, 0, testTime())
	orphanFav := entities.NewWagerItem(entities.MarketRef{GameID: 99}, entities.SubMarketSpread,
		entities.SideTeam1, entities.Quote{Line: -3.5, Price: -110}, 0, testTime())

	assert.True(t, r.IsUnderdog(orphanDog))
	assert.False(t, r.IsUnderdog(orphanFav))
}

func TestMarketRegistry_Snapshot(t *testing.T) {
	t.Parallel()

	r := NewMarketRegistry()
	r.Prime([]*entities.Market{gameMarket(1), gameMarket(2)})

	snaps := r.Snapshot()
	assert.Len(t, snaps, 2)

	// Snapshots are clones; mutating one never reaches the cache.
	snaps[0].MaxWager = 0
	m, _ := r.Lookup(snaps[0].Ref)
	assert.Equal(t, entities.Money(1_000_000), m.MaxWager)
}
