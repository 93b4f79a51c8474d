package observability

// Metric name prefixes
const (
	MetricPrefix = "betslip"
)

// Metric names
const (
	// Market feed metrics
	MarketUpdatesTotal = MetricPrefix + ".markets.updates_total"
	MarketsTracked     = MetricPrefix + ".markets.tracked"

	// Reconciliation metrics
	LegsReconciledTotal = MetricPrefix + ".legs.reconciled_total"

	// Ticket metrics
	TicketsPostedTotal = MetricPrefix + ".tickets.posted_total"
	SessionsActive     = MetricPrefix + ".sessions.active"

	// Wagering gateway metrics
	GatewayCallsTotal   = MetricPrefix + ".gateway.calls_total"
	GatewayCallDuration = MetricPrefix + ".gateway.call_duration"

	// Database metrics
	DatabaseQueriesTotal  = MetricPrefix + ".database.queries_total"
	DatabaseQueryDuration = MetricPrefix + ".database.query_duration"

	// Stream metrics
	StreamMessagesReceivedTotal = MetricPrefix + ".stream.messages_received_total"
)

// Label keys
const (
	// Common labels
	LabelResult  = "result"
	LabelOutcome = "outcome"
	LabelType    = "type"

	// Gateway labels
	LabelOperation = "operation"

	// Database labels
	LabelRepository = "repository"
	LabelMethod     = "method"

	// Stream labels
	LabelDriver = "driver"
)

// Market update results
const (
	UpdateResultApplied = "applied"
	UpdateResultStale   = "stale"
)

// Reconciled leg outcomes
const (
	LegOutcomeFlagged      = "flagged"
	LegOutcomeInvalidated  = "invalidated"
	LegOutcomeAutoAccepted = "auto_accepted"
)

// Gateway call results
const (
	CallResultOK       = "ok"
	CallResultRejected = "rejected"
	CallResultError    = "error"
)
