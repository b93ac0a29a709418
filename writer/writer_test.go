package writer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	appconfig "bookflow/config"
	"bookflow/internal/channel"
	"bookflow/models"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func sampleSnapshot() BookSnapshot {
	return BookSnapshot{
		ProductID: "BTC-USD",
		Time:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		State: &models.BookState{
			Sequence: 42,
			Bids: []*models.PriceLevel{
				{Price: d("100"), TotalSize: d("5")},
				{Price: d("99"), TotalSize: d("2")},
			},
			Asks: []*models.PriceLevel{
				{Price: d("101"), TotalSize: d("3")},
			},
		},
	}
}

func TestFlattenSnapshot(t *testing.T) {
	records := flattenSnapshot(sampleSnapshot())
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	ask := records[0]
	if ask.Side != "sell" || ask.Price != 101 || ask.Size != 3 || ask.Level != 1 {
		t.Errorf("unexpected ask record: %+v", ask)
	}
	if records[1].Side != "buy" || records[1].Level != 1 || records[1].Price != 100 {
		t.Errorf("unexpected best bid record: %+v", records[1])
	}
	if records[2].Level != 2 || records[2].Price != 99 {
		t.Errorf("unexpected second bid record: %+v", records[2])
	}
	for _, r := range records {
		if r.ProductID != "BTC-USD" || r.Sequence != 42 {
			t.Errorf("record missing identity fields: %+v", r)
		}
	}
}

func TestArchiveKeyPartitioning(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)
	key := archiveKey("ETH-USD", ts)
	want := "product=ETH-USD/2026/03/01/bookflow_ETH-USD_20260301123045.parquet"
	if key != want {
		t.Errorf("archiveKey = %q, want %q", key, want)
	}
}

func TestNewArchiverRequiresLocalDir(t *testing.T) {
	cfg := &appconfig.Config{}
	if _, err := NewArchiver(cfg); err == nil {
		t.Error("expected error for missing local_dir")
	}
}

func TestArchiveQueueDropsWhenFull(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Archive.LocalDir = t.TempDir()

	a, err := NewArchiver(cfg)
	if err != nil {
		t.Fatalf("NewArchiver failed: %v", err)
	}
	a.in = make(chan BookSnapshot, 1)

	if !a.Archive(sampleSnapshot()) {
		t.Error("expected first snapshot to be accepted")
	}
	if a.Archive(sampleSnapshot()) {
		t.Error("expected second snapshot to be dropped")
	}
}

func TestCreateParquetFileNotEmpty(t *testing.T) {
	data, err := createParquetFile(flattenSnapshot(sampleSnapshot()))
	if err != nil {
		t.Fatalf("createParquetFile failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty parquet payload")
	}
}

func TestNewCommandWriterValidatesConfig(t *testing.T) {
	chans := channel.NewChannels(1, 1, 1)
	defer chans.Close()

	cfg := &appconfig.Config{}
	if _, err := NewCommandWriter(cfg, chans); err == nil {
		t.Error("expected error for missing brokers")
	}

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	if _, err := NewCommandWriter(cfg, chans); err == nil {
		t.Error("expected error for missing topic")
	}

	cfg.Kafka.Topic = "bookflow.commands"
	cw, err := NewCommandWriter(cfg, chans)
	if err != nil {
		t.Fatalf("NewCommandWriter failed: %v", err)
	}
	if cw == nil {
		t.Fatal("NewCommandWriter returned nil")
	}
}

func TestFlushContextSurvivesCancellation(t *testing.T) {
	chans := channel.NewChannels(1, 1, 1)
	defer chans.Close()

	cfg := &appconfig.Config{}
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Topic = "bookflow.commands"
	cw, err := NewCommandWriter(cfg, chans)
	if err != nil {
		t.Fatalf("NewCommandWriter failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cw.ctx = ctx
	cancel()

	// The final flush runs after cancellation; its context must still
	// be live so the shutdown batch reaches the broker.
	if err := cw.flushContext().Err(); err != nil {
		t.Fatalf("flush context after cancellation: %v", err)
	}

	cw.ctx = nil
	if err := cw.flushContext().Err(); err != nil {
		t.Fatalf("flush context without run context: %v", err)
	}
}

func TestArchiverWritesManifestDir(t *testing.T) {
	dir := t.TempDir()
	cfg := &appconfig.Config{}
	cfg.Bookflow.Name = "bookflow"
	cfg.Archive.LocalDir = dir

	a, err := NewArchiver(cfg)
	if err != nil {
		t.Fatalf("NewArchiver failed: %v", err)
	}

	a.writeBatch("BTC-USD", flattenSnapshot(sampleSnapshot()))

	matches, err := filepath.Glob(filepath.Join(dir, "product=BTC-USD", "*", "*", "*", "*.parquet"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one parquet file, found %v", matches)
	}
	if _, err := os.Stat(filepath.Join(dir, "metadata", "metadata.json")); err != nil {
		t.Errorf("expected archive metadata to be written: %v", err)
	}
}
