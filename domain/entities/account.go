package entities

// AccountProfile carries the bettor settings the engine consults while
// reconciling market moves and enforcing chain stakes.
type AccountProfile struct {
	AccountID string

	// AutoAcceptBetterOdds lets favorable moves update posted legs without
	// review. RequireReviewOnChange overrides it: every move flags.
	AutoAcceptBetterOdds  bool
	RequireReviewOnChange bool

	// UnrestrictedCredit exempts the account from the rolling chain-limit
	// rule on if-bet stakes.
	UnrestrictedCredit bool

	FreePlayBalance Money
}
