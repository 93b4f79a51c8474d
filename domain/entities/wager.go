package entities

// SubMarket is the closed set of sub-markets a leg can select. Code that
// dispatches on it switches exhaustively; there is no open-ended string form.
type SubMarket string

const (
	SubMarketSpread    SubMarket = "spread"
	SubMarketMoneyLine SubMarket = "moneyline"
	SubMarketTotal     SubMarket = "total"
	SubMarketTeamTotal SubMarket = "team_total"
	SubMarketContest   SubMarket = "contest"
)

func (s SubMarket) Valid() bool {
	switch s {
	case SubMarketSpread, SubMarketMoneyLine, SubMarketTotal, SubMarketTeamTotal, SubMarketContest:
		return true
	}
	return false
}

func (s SubMarket) String() string {
	return string(s)
}

// Side selects a position within a sub-market. For spreads and money lines it
// is team 1, team 2, or the draw; for totals it is over/under; for team
// totals it spans the four over/under positions; for contests it is the
// contestant's listed position.
type Side int32

const (
	SideTeam1 Side = 1
	SideTeam2 Side = 2
	SideDraw  Side = 3
)

// Total positions.
const (
	SideOver  Side = 1
	SideUnder Side = 2
)

// Team-total positions.
const (
	TeamTotalHomeOver  Side = 1
	TeamTotalHomeUnder Side = 2
	TeamTotalAwayOver  Side = 3
	TeamTotalAwayUnder Side = 4
)

// ValidSide reports whether the side is meaningful for the sub-market. Draw
// validity further depends on the market offering a draw price; that check
// belongs to quote resolution.
func ValidSide(sub SubMarket, s Side) bool {
	switch sub {
	case SubMarketSpread, SubMarketTotal:
		return s == 1 || s == 2
	case SubMarketMoneyLine:
		return s >= 1 && s <= 3
	case SubMarketTeamTotal:
		return s >= 1 && s <= 4
	case SubMarketContest:
		return s >= 1
	}
	return false
}

// WagerType is the closed set of ticket shapes the engine can build.
type WagerType string

const (
	WagerTypeStraight      WagerType = "straight"
	WagerTypeParlay        WagerType = "parlay"
	WagerTypeTeaser        WagerType = "teaser"
	WagerTypeIfWinOnly     WagerType = "if_win_only"
	WagerTypeIfWinOrPush   WagerType = "if_win_or_push"
	WagerTypeActionReverse WagerType = "action_reverse"
	WagerTypeContest       WagerType = "contest"
)

func (t WagerType) Valid() bool {
	switch t {
	case WagerTypeStraight, WagerTypeParlay, WagerTypeTeaser,
		WagerTypeIfWinOnly, WagerTypeIfWinOrPush, WagerTypeActionReverse,
		WagerTypeContest:
		return true
	}
	return false
}

// Accumulator reports whether legs share a combined stake or payout, which
// forces whole-ticket amount resets whenever the leg set changes.
func (t WagerType) Accumulator() bool {
	switch t {
	case WagerTypeParlay, WagerTypeTeaser, WagerTypeIfWinOnly,
		WagerTypeIfWinOrPush, WagerTypeActionReverse:
		return true
	}
	return false
}

// Chained reports whether later legs are funded by earlier results, which
// subjects their stakes to the rolling chain-limit rule.
func (t WagerType) Chained() bool {
	switch t {
	case WagerTypeIfWinOnly, WagerTypeIfWinOrPush, WagerTypeActionReverse:
		return true
	}
	return false
}

func (t WagerType) String() string {
	return string(t)
}

// ChangeDirection classifies a quote move from the holder's perspective.
type ChangeDirection int32

const (
	ChangeNeutral ChangeDirection = iota
	ChangeFavorable
	ChangeUnfavorable
)

func (d ChangeDirection) String() string {
	switch d {
	case ChangeFavorable:
		return "favorable"
	case ChangeUnfavorable:
		return "unfavorable"
	default:
		return "neutral"
	}
}
