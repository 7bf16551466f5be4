package telemetry

// TickBuckets covers poll cycles from a quick empty poll to a slow bulk publish
var TickBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Polling metrics
var (
	// TicksTotal counts poll cycles by result (success, failed)
	TicksTotal CounterVec = noopCounterVec{}

	// TickDurationSeconds measures poll cycle latency
	TickDurationSeconds Histogram = NoopStat{}

	// ConsecutiveTickFailures is the number of failed ticks since the last success
	ConsecutiveTickFailures Gauge = NoopStat{}

	// LastSuccessfulTick is the unix time of the last successful tick
	LastSuccessfulTick Gauge = NoopStat{}

	// PollingActive is 1 once the scheduler has started
	PollingActive Gauge = NoopStat{}

	// EventsPublishedTotal counts change events accepted by the bus
	EventsPublishedTotal Counter = NoopStat{}

	// RowsSkippedTotal counts source rows dropped for lacking the identity field
	RowsSkippedTotal Counter = NoopStat{}
)

// Cursor metrics
var (
	// CursorCommitsTotal counts cursor values persisted to the state store
	CursorCommitsTotal Counter = NoopStat{}

	// CursorFallbackProbesTotal counts loads that fell back to the source position
	CursorFallbackProbesTotal Counter = NoopStat{}
)

// Bootstrap metrics
var (
	// BootstrapTotal counts acquire calls by result (success, failed)
	BootstrapTotal CounterVec = noopCounterVec{}

	// BootstrapNodesTotal counts nodes returned by acquire calls
	BootstrapNodesTotal Counter = NoopStat{}
)

// InitMetrics registers all metrics with Prometheus
func InitMetrics() {
	TicksTotal = NewCounterVec(
		"ticks_total",
		"Total poll cycles by result",
		[]string{"result"},
	)
	TickDurationSeconds = NewHistogramWithBuckets(
		"tick_duration_seconds",
		"Poll cycle latency",
		TickBuckets,
	)
	ConsecutiveTickFailures = NewGauge(
		"consecutive_tick_failures",
		"Failed poll cycles since the last successful one",
	)
	LastSuccessfulTick = NewGauge(
		"last_successful_tick_timestamp",
		"Unix time of the last successful poll cycle",
	)
	PollingActive = NewGauge(
		"polling_active",
		"Whether the polling scheduler is running (1=yes, 0=no)",
	)
	EventsPublishedTotal = NewCounter(
		"events_published_total",
		"Total change events published",
	)
	RowsSkippedTotal = NewCounter(
		"rows_skipped_total",
		"Source rows dropped because the identity field was missing",
	)

	CursorCommitsTotal = NewCounter(
		"cursor_commits_total",
		"Total cursor values persisted",
	)
	CursorFallbackProbesTotal = NewCounter(
		"cursor_fallback_probes_total",
		"Cursor loads that fell back to probing the source position",
	)

	BootstrapTotal = NewCounterVec(
		"bootstrap_total",
		"Total acquire calls by result",
		[]string{"result"},
	)
	BootstrapNodesTotal = NewCounter(
		"bootstrap_nodes_total",
		"Total nodes returned by acquire calls",
	)
}
