package domain

import (
	"errors"
	"fmt"

	"betslip/domain/entities"
)

// Sentinel causes for local validation failures. Callers match them with
// errors.Is through the ValidationError wrapper.
var (
	ErrMutationInFlight  = errors.New("another mutation is in flight")
	ErrMutationDiscarded = errors.New("ticket was reset while the mutation was in flight")
	ErrTicketImmutable   = errors.New("ticket is posted and immutable")
	ErrLegNotFound       = errors.New("leg is not on the ticket")
	ErrMarketNotFound    = errors.New("market is not in the registry")
	ErrQuoteUnavailable  = errors.New("selection is not currently offered")
	ErrLimitExceeded     = errors.New("amount exceeds the wager limit")
	ErrPickCount         = errors.New("pick count is outside the allowed range")
	ErrMaxPicksReached   = errors.New("ticket already holds the maximum number of picks")
	ErrTeaserUnknown     = errors.New("teaser is not offered")
	ErrAmountsMissing    = errors.New("ticket amounts are not set")
	ErrFreePlayPrice     = errors.New("price exceeds the free-play threshold")
	ErrWagerTypeConflict = errors.New("operation does not apply to this wager type")
)

// ValidationError is a local pre-flight failure: the engine refused the
// operation before contacting the wagering service.
type ValidationError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps a sentinel cause with operation context.
func NewValidationError(op string, cause error, reason string) *ValidationError {
	return &ValidationError{Op: op, Reason: reason, Err: cause}
}

// RemoteRejectionError carries the wagering service's refusal. Message is the
// remote text verbatim; it is never rephrased on the way through.
type RemoteRejectionError struct {
	Op      string
	Message string
}

func (e *RemoteRejectionError) Error() string {
	return fmt.Sprintf("%s rejected by wagering service: %s", e.Op, e.Message)
}

// MarketInvalidatedError reports a leg lost to a held or delisted market.
type MarketInvalidatedError struct {
	Ref    entities.MarketRef
	Reason string
}

func (e *MarketInvalidatedError) Error() string {
	return fmt.Sprintf("%s invalidated: %s", e.Ref, e.Reason)
}

// PartialPostError reports a post the remote accepted for only some legs.
// The ticket number is live; the failed legs carry their remote messages.
type PartialPostError struct {
	TicketNumber int64
	Accepted     int
	Failures     []LegFailure
}

// LegFailure is one rejected leg of a partial post, message verbatim.
type LegFailure struct {
	Index   int
	Message string
}

func (e *PartialPostError) Error() string {
	return fmt.Sprintf("ticket %d posted partially: %d legs accepted, %d failed",
		e.TicketNumber, e.Accepted, len(e.Failures))
}
