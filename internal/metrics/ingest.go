package metrics

import "bookflow/logger"

// IngestStats holds counters for the live book ingest loop.
type IngestStats struct {
	MessagesProcessed int64
	GapsDetected      int64
	Inconsistencies   int64
	BooksSynced       int
	BooksErrored      int
	RawChannelLen     int
	RawChannelCap     int
	EventsChannelLen  int
	EventsChannelCap  int
}

// ReportIngest emits metrics for the ingest loop that feeds live books.
func ReportIngest(log *logger.Log, stats IngestStats) {
	l := log.WithComponent("book_ingest")

	l.LogMetric("book_ingest", "book_updates_processed", stats.MessagesProcessed, "counter", logger.Fields{})
	l.LogMetric("book_ingest", "sequence_gaps_detected", stats.GapsDetected, "counter", logger.Fields{})
	l.LogMetric("book_ingest", "book_inconsistencies", stats.Inconsistencies, "counter", logger.Fields{})
	l.LogMetric("book_ingest", "books_synced", stats.BooksSynced, "gauge", logger.Fields{})
	l.LogMetric("book_ingest", "books_errored", stats.BooksErrored, "gauge", logger.Fields{})

	entry := l.WithFields(logger.Fields{
		"messages_processed": stats.MessagesProcessed,
		"gaps_detected":      stats.GapsDetected,
		"inconsistencies":    stats.Inconsistencies,
		"books_synced":       stats.BooksSynced,
		"books_errored":      stats.BooksErrored,
		"raw_channel_len":    stats.RawChannelLen,
		"raw_channel_cap":    stats.RawChannelCap,
		"events_channel_len": stats.EventsChannelLen,
		"events_channel_cap": stats.EventsChannelCap,
	})

	if stats.Inconsistencies > 0 || stats.BooksErrored > 0 {
		entry.Warn("book ingest metrics")
		return
	}

	entry.Info("book ingest metrics")
}
