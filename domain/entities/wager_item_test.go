package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWagerItem_SetRiskDerivesToWin(t *testing.T) {
	t.Parallel()

	w := testLeg(1, SubMarketSpread, SideTeam1, -110)
	w.SetRisk(11000)

	assert.Equal(t, Money(11000), w.Risk())
	assert.Equal(t, Money(10000), w.ToWin())
	assert.True(t, w.HasAmounts())
}

func TestWagerItem_SetToWinDerivesRisk(t *testing.T) {
	t.Parallel()

	w := testLeg(1, SubMarketSpread, SideTeam1, -120)
	w.SetToWin(10000)

	assert.Equal(t, Money(12000), w.Risk())
	assert.Equal(t, Money(10000), w.ToWin())
}

func TestWagerItem_EntryAmount(t *testing.T) {
	t.Parallel()

	fav := testLeg(1, SubMarketSpread, SideTeam1, -110)
	fav.SetRisk(11000)
	// Favorites are entered in to-win units.
	assert.Equal(t, Money(10000), fav.EntryAmount())

	dog := testLeg(2, SubMarketMoneyLine, SideTeam2, 150)
	dog.SetRisk(10000)
	// Underdogs are entered in risk units.
	assert.Equal(t, Money(10000), dog.EntryAmount())
}

func TestWagerItem_ExceedsLimit(t *testing.T) {
	t.Parallel()

	w := testLeg(1, SubMarketSpread, SideTeam1, -110)
	w.MaxWagerLimit = 10000
	w.SetToWin(10000)
	assert.False(t, w.ExceedsLimit())

	w.SetToWin(10001)
	assert.True(t, w.ExceedsLimit())

	w.ClearAmounts()
	assert.False(t, w.ExceedsLimit())
}

func TestWagerItem_CapAndRestoreLimit(t *testing.T) {
	t.Parallel()

	w := testLeg(1, SubMarketSpread, SideTeam1, -110)
	w.MaxWagerLimit = 100000

	w.CapLimit(15833)
	assert.Equal(t, Money(15833), w.MaxWagerLimit)
	require.NotNil(t, w.OrigMaxWagerLimit)
	assert.Equal(t, Money(100000), *w.OrigMaxWagerLimit)

	// A higher cap never raises the limit.
	w.CapLimit(200000)
	assert.Equal(t, Money(15833), w.MaxWagerLimit)

	w.RestoreLimit()
	assert.Equal(t, Money(100000), w.MaxWagerLimit)
	assert.Nil(t, w.OrigMaxWagerLimit)
}

func TestWagerItem_Invalidate(t *testing.T) {
	t.Parallel()

	w := testLeg(1, SubMarketSpread, SideTeam1, -110)
	w.SetRisk(5000)

	w.Invalidate("market held")

	assert.False(t, w.Available)
	assert.False(t, w.IsOK)
	assert.Equal(t, "market held", w.StatusReason)
	assert.False(t, w.HasAmounts())
}

func TestWagerItem_ChangedFlagExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	w := testLeg(1, SubMarketSpread, SideTeam1, -110)

	w.MarkChanged(now.Add(30 * time.Second))
	assert.True(t, w.Changed)

	// Not yet expired.
	assert.False(t, w.ClearExpiredChange(now.Add(10*time.Second)))
	assert.True(t, w.Changed)

	// Past the window.
	assert.True(t, w.ClearExpiredChange(now.Add(31*time.Second)))
	assert.False(t, w.Changed)
	assert.True(t, w.ChangedUntil.IsZero())
}

func TestWagerItem_AcceptChange(t *testing.T) {
	t.Parallel()

	w := testLeg(1, SubMarketSpread, SideTeam1, -110)
	w.MarkChanged(time.Now().Add(time.Minute))

	w.AcceptChange()
	assert.False(t, w.Changed)
	assert.True(t, w.ChangedUntil.IsZero())
}

func TestWagerItem_Clone_Independent(t *testing.T) {
	t.Parallel()

	w := testLeg(1, SubMarketSpread, SideTeam1, -110)
	w.SetRisk(5000)
	w.Bought = &BoughtPoints{HalfPoints: 1, FromLine: -3.5, FromPrice: -110}

	cp := w.Clone()
	cp.SetRisk(9999)
	cp.Bought.HalfPoints = 4

	assert.Equal(t, Money(5000), w.Risk())
	assert.Equal(t, int32(1), w.Bought.HalfPoints)
}
