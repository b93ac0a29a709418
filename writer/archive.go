package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "bookflow/config"
	"bookflow/internal/metadata"
	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/models"
)

// BookSnapshot is one sampled book state queued for archiving.
type BookSnapshot struct {
	ProductID string
	Time      time.Time
	State     *models.BookState
}

// bookRecord is the flattened parquet row: one row per price level,
// Level counting from the best price on each side.
type bookRecord struct {
	ProductID string  `parquet:"name=product_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64"`
	Sequence  int64   `parquet:"name=sequence, type=INT64"`
	Side      string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price     float64 `parquet:"name=price, type=DOUBLE"`
	Size      float64 `parquet:"name=size, type=DOUBLE"`
	Level     int32   `parquet:"name=level, type=INT32"`
}

// memoryFileWriter implements the ParquetFile interface over a byte
// buffer so files are assembled in memory before hitting disk or S3.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)   { return mfw, nil }

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// Archiver persists sampled book states as parquet files under a local
// directory, optionally mirroring each file to S3. Snapshots are
// buffered per product and flushed on an interval.
type Archiver struct {
	config      *appconfig.Config
	in          chan BookSnapshot
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
	buffer      map[string][]bookRecord
	flushTicker *time.Ticker
	metaGen     *metadata.Generator

	batchesWritten int64
	filesWritten   int64
	bytesWritten   int64
	errorsCount    int64
}

func NewArchiver(cfg *appconfig.Config) (*Archiver, error) {
	log := logger.GetLogger()

	if cfg.Archive.LocalDir == "" {
		return nil, fmt.Errorf("archive local_dir not configured")
	}
	if err := os.MkdirAll(cfg.Archive.LocalDir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	a := &Archiver{
		config:  cfg,
		in:      make(chan BookSnapshot, 64),
		wg:      &sync.WaitGroup{},
		log:     log,
		buffer:  make(map[string][]bookRecord),
		metaGen: metadata.NewGenerator(cfg.Archive.LocalDir, cfg.Bookflow.Name),
	}

	if cfg.Archive.S3.Enabled {
		client, err := newS3Client(cfg.Archive.S3)
		if err != nil {
			return nil, err
		}
		a.s3Client = client
	}

	log.WithComponent("archive_writer").WithFields(logger.Fields{
		"local_dir":  cfg.Archive.LocalDir,
		"s3_enabled": cfg.Archive.S3.Enabled,
	}).Info("archiver initialized")

	return a, nil
}

func newS3Client(cfg appconfig.S3Config) (*s3.Client, error) {
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

// Archive queues a snapshot without blocking. The return value reports
// whether the snapshot was accepted.
func (a *Archiver) Archive(snap BookSnapshot) bool {
	select {
	case a.in <- snap:
		return true
	default:
		a.log.WithComponent("archive_writer").WithFields(logger.Fields{
			"product": snap.ProductID,
		}).Warn("archive queue full, dropping snapshot")
		return false
	}
}

func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("archiver already running")
	}
	a.running = true
	a.ctx = ctx
	a.mu.Unlock()

	flushInterval := a.config.Archive.FlushInterval
	if flushInterval <= 0 {
		flushInterval = time.Minute
	}
	a.flushTicker = time.NewTicker(flushInterval)

	a.log.WithComponent("archive_writer").Info("starting archiver")

	a.wg.Add(1)
	go a.run()

	return nil
}

func (a *Archiver) Stop() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	if a.flushTicker != nil {
		a.flushTicker.Stop()
	}

	a.log.WithComponent("archive_writer").Info("stopping archiver")
	a.wg.Wait()
	a.report()
	a.log.WithComponent("archive_writer").Info("archiver stopped")
}

func (a *Archiver) run() {
	defer a.wg.Done()

	batchSize := a.config.Archive.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	for {
		select {
		case <-a.ctx.Done():
			a.flushBuffers("shutdown")
			return
		case snap := <-a.in:
			records := flattenSnapshot(snap)
			a.mu.Lock()
			a.buffer[snap.ProductID] = append(a.buffer[snap.ProductID], records...)
			full := len(a.buffer[snap.ProductID]) >= batchSize
			a.mu.Unlock()
			if full {
				a.flushBuffers("batch_size")
			}
		case <-a.flushTicker.C:
			a.flushBuffers("interval")
		}
	}
}

// flattenSnapshot turns a book state into per-level rows, asks then
// bids, each side numbered from the best price.
func flattenSnapshot(snap BookSnapshot) []bookRecord {
	ts := snap.Time.UnixMilli()
	records := make([]bookRecord, 0, len(snap.State.Asks)+len(snap.State.Bids))
	for i, level := range snap.State.Asks {
		records = append(records, bookRecord{
			ProductID: snap.ProductID,
			Timestamp: ts,
			Sequence:  snap.State.Sequence,
			Side:      models.Sell.String(),
			Price:     level.Price.InexactFloat64(),
			Size:      level.TotalSize.InexactFloat64(),
			Level:     int32(i + 1),
		})
	}
	for i, level := range snap.State.Bids {
		records = append(records, bookRecord{
			ProductID: snap.ProductID,
			Timestamp: ts,
			Sequence:  snap.State.Sequence,
			Side:      models.Buy.String(),
			Price:     level.Price.InexactFloat64(),
			Size:      level.TotalSize.InexactFloat64(),
			Level:     int32(i + 1),
		})
	}
	return records
}

func (a *Archiver) flushBuffers(reason string) {
	a.mu.Lock()
	buffers := a.buffer
	a.buffer = make(map[string][]bookRecord)
	a.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	a.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing archive buffers")

	for product, records := range buffers {
		if len(records) == 0 {
			continue
		}
		a.writeBatch(product, records)
	}
}

func (a *Archiver) writeBatch(product string, records []bookRecord) {
	now := time.Now().UTC()
	log := a.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"product": product,
		"records": len(records),
	})

	data, err := createParquetFile(records)
	if err != nil {
		atomic.AddInt64(&a.errorsCount, 1)
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	key := archiveKey(product, now)
	path := filepath.Join(a.config.Archive.LocalDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		atomic.AddInt64(&a.errorsCount, 1)
		log.WithError(err).Error("failed to create archive partition directory")
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		atomic.AddInt64(&a.errorsCount, 1)
		log.WithError(err).Error("failed to write archive file")
		return
	}

	atomic.AddInt64(&a.batchesWritten, 1)
	atomic.AddInt64(&a.filesWritten, 1)
	atomic.AddInt64(&a.bytesWritten, int64(len(data)))
	logger.IncrementArchiveWrite(int64(len(data)))

	if a.s3Client != nil {
		if err := a.uploadToS3(key, data); err != nil {
			atomic.AddInt64(&a.errorsCount, 1)
			log.WithError(err).
				WithEnv("S3_BUCKET").
				WithFields(logger.Fields{"bucket": a.config.Archive.S3.Bucket, "s3_key": key}).
				Error("failed to upload archive to S3")
		}
	}

	df := metadata.DataFile{
		Path:        path,
		FileSize:    int64(len(data)),
		RecordCount: int64(len(records)),
		Partition: map[string]any{
			"product": product,
			"date":    now.Format("2006-01-02"),
		},
		Timestamp: now,
	}
	if err := a.metaGen.AddFile(df); err != nil {
		log.WithError(err).Warn("failed to update archive metadata")
	}

	log.WithFields(logger.Fields{"path": path, "file_size": len(data)}).Info("archive batch written")
}

func archiveKey(product string, ts time.Time) string {
	return fmt.Sprintf("product=%s/%04d/%02d/%02d/bookflow_%s_%s.parquet",
		product, ts.Year(), ts.Month(), ts.Day(),
		product, ts.Format("20060102150405"))
}

func createParquetFile(records []bookRecord) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := parquetwriter.NewParquetWriter(fw, new(bookRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, record := range records {
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}

func (a *Archiver) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Archive.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":     "parquet",
			"bookflow-version": a.config.Bookflow.Version,
		},
	}

	ctx := context.WithoutCancel(a.ctx)
	if _, err := a.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", a.config.Archive.S3.Bucket, err)
	}
	return nil
}

func (a *Archiver) report() {
	metrics.ReportWriter(a.log, "archive_writer", metrics.WriterStats{
		BatchesWritten: atomic.LoadInt64(&a.batchesWritten),
		FilesWritten:   atomic.LoadInt64(&a.filesWritten),
		BytesWritten:   atomic.LoadInt64(&a.bytesWritten),
		ErrorsCount:    atomic.LoadInt64(&a.errorsCount),
		ChannelLen:     len(a.in),
		ChannelCap:     cap(a.in),
	})
}
