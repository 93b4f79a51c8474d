package entities

// ParlayLimit caps leg composition for one parlay size. Nil maxima are
// unrestricted; a missing row for a size means no composition limit at all.
type ParlayLimit struct {
	Teams         int  `yaml:"teams" validate:"gte=2,lte=100"`
	MaxDogs       *int `yaml:"max_dogs,omitempty" validate:"omitempty,gte=0"`
	MaxTotals     *int `yaml:"max_totals,omitempty" validate:"omitempty,gte=0"`
	MaxMoneyLines *int `yaml:"max_money_lines,omitempty" validate:"omitempty,gte=0"`
}

// TeaserPayRow is one pay-card entry: risk RiskUnits to win WinUnits at the
// given pick count.
type TeaserPayRow struct {
	Picks     int   `yaml:"picks" validate:"gte=2"`
	RiskUnits int64 `yaml:"risk_units" validate:"gt=0"`
	WinUnits  int64 `yaml:"win_units" validate:"gt=0"`
}

// ToWin prices a teaser stake off the card row.
func (r TeaserPayRow) ToWin(risk Money) Money {
	return Money(int64(risk) * r.WinUnits / r.RiskUnits)
}

// TeaserSpec is one named teaser offering: how many points legs are moved
// and the pay card across pick counts.
type TeaserSpec struct {
	Name     string         `yaml:"name" validate:"required"`
	Points   Line           `yaml:"points" validate:"gt=0"`
	MinPicks int            `yaml:"min_picks" validate:"gte=2"`
	MaxPicks int            `yaml:"max_picks" validate:"gtefield=MinPicks"`
	PayCard  []TeaserPayRow `yaml:"pay_card" validate:"min=1,dive"`
}

// PayRowFor returns the card row for a pick count.
func (s *TeaserSpec) PayRowFor(picks int) (TeaserPayRow, bool) {
	for _, r := range s.PayCard {
		if r.Picks == picks {
			return r, true
		}
	}
	return TeaserPayRow{}, false
}

// PickRangeFor is the teaser's own pick bounds.
func (s *TeaserSpec) PickRangeFor() PickRange {
	return PickRange{Min: s.MinPicks, Max: s.MaxPicks}
}

// LimitTables is the read-only reference data the limit engine consults:
// parlay composition rows, teaser offerings, per-type pick ranges and the
// house payout ceiling.
type LimitTables struct {
	ParlayLimits     []ParlayLimit           `yaml:"parlay_limits" validate:"dive"`
	Teasers          []TeaserSpec            `yaml:"teasers" validate:"dive"`
	Picks            map[WagerType]PickRange `yaml:"picks" validate:"dive"`
	OpenSpotMax      int                     `yaml:"open_spot_max" validate:"gte=0"`
	MaxPayout        Money                   `yaml:"max_payout" validate:"gt=0"`
	MaxFreePlayPrice Price                   `yaml:"max_free_play_price"`
}

// ParlayLimitFor finds the composition row for a selection count, clamping
// the count into the supported 2..100 band first. Nil means unrestricted.
func (lt *LimitTables) ParlayLimitFor(n int) *ParlayLimit {
	if n < 2 {
		n = 2
	}
	if n > 100 {
		n = 100
	}
	for i := range lt.ParlayLimits {
		if lt.ParlayLimits[i].Teams == n {
			return &lt.ParlayLimits[i]
		}
	}
	return nil
}

// TeaserByName looks up a teaser offering.
func (lt *LimitTables) TeaserByName(name string) (*TeaserSpec, bool) {
	for i := range lt.Teasers {
		if lt.Teasers[i].Name == name {
			return &lt.Teasers[i], true
		}
	}
	return nil, false
}

// PicksFor returns the allowed pick range for a wager type; a resolved teaser
// spec overrides the generic teaser row.
func (lt *LimitTables) PicksFor(t WagerType, teaser *TeaserSpec) PickRange {
	if t == WagerTypeTeaser && teaser != nil {
		return teaser.PickRangeFor()
	}
	if r, ok := lt.Picks[t]; ok {
		return r
	}
	switch t {
	case WagerTypeStraight, WagerTypeContest:
		// A straight or contest slip holds independent single bets.
		return PickRange{Min: 1, Max: 100}
	case WagerTypeActionReverse:
		return PickRange{Min: 2, Max: 2}
	default:
		return PickRange{Min: 2, Max: 100}
	}
}
