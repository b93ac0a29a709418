package metrics

import (
	"testing"

	"bookflow/logger"
)

func TestReportIngest(t *testing.T) {
	log := logger.GetLogger()
	stats := IngestStats{
		MessagesProcessed: 10,
		GapsDetected:      1,
		BooksSynced:       2,
		RawChannelLen:     1,
		RawChannelCap:     64,
		EventsChannelLen:  0,
		EventsChannelCap:  256,
	}
	ReportIngest(log, stats)
}

func TestReportWriter(t *testing.T) {
	log := logger.GetLogger()
	stats := WriterStats{
		BatchesWritten: 3,
		FilesWritten:   1,
		BytesWritten:   2048,
		ChannelLen:     0,
		ChannelCap:     128,
	}
	ReportWriter(log, "archive_writer", stats)
}
