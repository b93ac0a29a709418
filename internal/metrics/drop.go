package metrics

import "bookflow/logger"

// DropMetric identifies the metric name emitted when channel messages are dropped.
type DropMetric string

const (
	// DropMetricFeedRaw records feed messages dropped before ingestion.
	DropMetricFeedRaw DropMetric = "feed_messages_dropped"
	// DropMetricBookEvents records book events discarded because the event
	// channel was full.
	DropMetricBookEvents DropMetric = "book_events_dropped"
	// DropMetricCommands records trader commands dropped before publishing.
	DropMetricCommands DropMetric = "commands_dropped"
)

// EmitDropMetric logs and emits a metric representing a dropped channel
// message. The metric value is always incremented by one so callers should
// invoke this helper for each dropped message. Optional metadata (product,
// stage) is added to the metric fields when provided which enables downstream
// aggregation per product and pipeline stage.
func EmitDropMetric(log *logger.Log, metric DropMetric, product, stage string) {
	fields := logger.Fields{}
	if product != "" {
		fields["product"] = product
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "channel_drops", string(metric), 1, "counter", fields)
}
