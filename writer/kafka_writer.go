package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"

	appconfig "bookflow/config"
	"bookflow/internal/channel"
	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/models"
)

// CommandWriter publishes trader commands to Kafka. Commands are
// batched per flush and keyed by product so downstream consumers see
// each product's commands in order.
type CommandWriter struct {
	config   *appconfig.Config
	channels *channel.Channels
	writer   *kafka.Writer
	limiter  *rate.Limiter
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	batchesWritten int64
	bytesWritten   int64
	errorsCount    int64
	rateLimitWaits int64
}

func NewCommandWriter(cfg *appconfig.Config, channels *channel.Channels) (*CommandWriter, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.Kafka.Topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}

	rps := cfg.Kafka.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 100
	}
	burst := cfg.Kafka.RateLimit.BurstSize
	if burst <= 0 {
		burst = rps
	}

	cw := &CommandWriter{
		config:   cfg,
		channels: channels,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Kafka.Brokers...),
			Topic:    cfg.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
	cw.log.WithComponent("command_writer").WithFields(logger.Fields{
		"brokers": cfg.Kafka.Brokers,
		"topic":   cfg.Kafka.Topic,
	}).Debug("command writer initialized")
	return cw, nil
}

func (cw *CommandWriter) Start(ctx context.Context) error {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return fmt.Errorf("command writer already running")
	}
	cw.running = true
	cw.ctx = ctx
	cw.mu.Unlock()

	cw.log.WithComponent("command_writer").Debug("starting command writer")

	cw.wg.Add(1)
	go cw.run()

	return nil
}

func (cw *CommandWriter) run() {
	defer cw.wg.Done()

	batchSize := cw.config.Kafka.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := cw.config.Kafka.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}

	flushTicker := time.NewTicker(batchTimeout)
	defer flushTicker.Stop()
	reportTicker := time.NewTicker(30 * time.Second)
	defer reportTicker.Stop()

	batch := make([]models.TraderCommand, 0, batchSize)

	for {
		select {
		case <-cw.ctx.Done():
			cw.flush(batch)
			return
		case cmd, ok := <-cw.channels.Commands:
			if !ok {
				cw.flush(batch)
				return
			}
			batch = append(batch, cmd)
			if len(batch) >= batchSize {
				cw.flush(batch)
				batch = batch[:0]
			}
		case <-flushTicker.C:
			cw.flush(batch)
			batch = batch[:0]
		case <-reportTicker.C:
			cw.report()
		}
	}
}

func (cw *CommandWriter) flush(batch []models.TraderCommand) {
	if len(batch) == 0 {
		return
	}

	log := cw.log.WithComponent("command_writer")

	messages := make([]kafka.Message, 0, len(batch))
	bytes := 0
	for _, cmd := range batch {
		data, err := json.Marshal(cmd)
		if err != nil {
			log.WithError(err).Warn("failed to marshal command")
			atomic.AddInt64(&cw.errorsCount, 1)
			continue
		}
		bytes += len(data)
		messages = append(messages, kafka.Message{
			Key:   []byte(cmd.ProductID),
			Value: data,
		})
	}
	if len(messages) == 0 {
		return
	}

	ctx := cw.flushContext()

	if !cw.limiter.Allow() {
		atomic.AddInt64(&cw.rateLimitWaits, 1)
		if err := cw.limiter.Wait(ctx); err != nil {
			return
		}
	}

	if err := cw.writer.WriteMessages(ctx, messages...); err != nil {
		atomic.AddInt64(&cw.errorsCount, 1)
		log.WithError(err).Warn("failed to write command batch")
		return
	}

	atomic.AddInt64(&cw.batchesWritten, 1)
	atomic.AddInt64(&cw.bytesWritten, int64(bytes))
	logger.IncrementCommandWrite(len(messages))
	log.WithFields(logger.Fields{"commands": len(messages)}).Debug("command batch written")
}

// flushContext detaches from the run context so the final flush after
// cancellation still reaches the broker.
func (cw *CommandWriter) flushContext() context.Context {
	if cw.ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(cw.ctx)
}

func (cw *CommandWriter) report() {
	metrics.ReportWriter(cw.log, "command_writer", metrics.WriterStats{
		BatchesWritten: atomic.LoadInt64(&cw.batchesWritten),
		BytesWritten:   atomic.LoadInt64(&cw.bytesWritten),
		ErrorsCount:    atomic.LoadInt64(&cw.errorsCount),
		RateLimitWaits: atomic.LoadInt64(&cw.rateLimitWaits),
		ChannelLen:     len(cw.channels.Commands),
		ChannelCap:     cap(cw.channels.Commands),
	})
}

func (cw *CommandWriter) Stop() {
	cw.mu.Lock()
	cw.running = false
	cw.mu.Unlock()

	cw.log.WithComponent("command_writer").Debug("stopping command writer")
	cw.writer.Close()
	cw.wg.Wait()
	cw.report()
	cw.log.WithComponent("command_writer").Debug("command writer stopped")
}
