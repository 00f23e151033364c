package domain

// Guardian event names. Each event is appended to the audit store and
// published on the signal bus so dashboards and notifiers can follow the
// guardian's state changes and corrective actions.
const (
	EventOwnershipTransferred = "ownership_transferred"
	EventThresholdUpdated     = "threshold_updated"
	EventOracleRebound        = "oracle_rebound"
	EventExecutorRebound      = "executor_rebound"
	EventPositionAdjusted     = "position_adjusted"
	EventTradeExecuted        = "trade_executed"
	EventBreachDetected       = "breach_detected"
)

// Signal bus channels.
const (
	ChannelMargin = "margin"
	ChannelEvents = "events"
)
