package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bookflow/config"
	"bookflow/internal/channel"
	"bookflow/internal/dashboard"
	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/processor"
	"bookflow/reader/feed"
	"bookflow/replicator"
	"bookflow/writer"
)

// feedSource is either the live websocket reader or the replay reader.
type feedSource interface {
	Start(ctx context.Context) error
	Stop()
}

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	shardPath := flag.String("shards", "", "Optional path to product shard configuration file")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Bookflow.Name,
		"version":     cfg.Bookflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting bookflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Configure(cfg.Metrics)
	if cfg.Metrics.Prometheus {
		metrics.Init()
	}
	if cfg.Metrics.CloudWatch.Enabled {
		cw := cfg.Metrics.CloudWatch
		logger.InitCloudWatch(cw.Region, cw.Namespace, cw.Dashboard)
		metrics.InitCloudWatch(cw.Region, cw.Namespace, cw.Dashboard)
		if err := metrics.CreateDashboardFromTemplate(ctx); err != nil {
			log.WithError(err).Warn("failed to create CloudWatch dashboard")
		}
	}

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(
		cfg.Channels.RawBuffer,
		cfg.Channels.EventBuffer,
		cfg.Channels.CommandBuffer,
	)
	defer channels.Close()

	channels.StartMetricsReporting(ctx)

	var archiver *writer.Archiver
	if cfg.Archive.Enabled {
		archiver, err = writer.NewArchiver(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create archiver")
			os.Exit(1)
		}
	}

	ingestor := processor.NewIngestor(cfg, channels, archiver)

	dash, err := dashboard.NewServer(cfg.Dashboard, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard server")
		os.Exit(1)
	}
	if dash != nil {
		dash.SetBooks(ingestor.Statuses)
		go func() {
			if err := dash.Run(ctx, cfg.Bookflow.Name); err != nil {
				log.WithError(err).Error("dashboard server failed")
			}
		}()
	}

	sources := buildFeedSources(cfg, *shardPath, channels, log)

	var commandWriter *writer.CommandWriter
	if cfg.Kafka.Enabled {
		commandWriter, err = writer.NewCommandWriter(cfg, channels)
		if err != nil {
			log.WithError(err).Error("failed to create command writer")
			os.Exit(1)
		}
	}

	var mirror *replicator.Replicator
	if cfg.Replicator.Enabled {
		source := ingestor.View(cfg.Replicator.SourceProduct)
		if source == nil {
			log.WithFields(logger.Fields{
				"products": cfg.Book.Products,
			}).Error("replicator source product is not a configured book")
			os.Exit(1)
		}
		mirror, err = replicator.NewReplicator(cfg.Replicator, source, channels)
		if err != nil {
			log.WithError(err).Error("failed to create replicator")
			os.Exit(1)
		}
	}

	if archiver != nil {
		if err := archiver.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start archiver")
			os.Exit(1)
		}
	}
	if commandWriter != nil {
		if err := commandWriter.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start command writer")
			os.Exit(1)
		}
	}
	if err := ingestor.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start ingestor")
		os.Exit(1)
	}
	if mirror != nil {
		if err := mirror.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start replicator")
			os.Exit(1)
		}
	}
	for _, src := range sources {
		if err := src.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start feed source")
			os.Exit(1)
		}
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		for _, src := range sources {
			src.Stop()
		}
		if mirror != nil {
			mirror.Stop()
		}
		ingestor.Stop()
		if commandWriter != nil {
			commandWriter.Stop()
		}
		if archiver != nil {
			archiver.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("bookflow stopped")
}

// buildFeedSources picks the replay reader when replay is enabled,
// otherwise one websocket reader per shard (or a single reader when no
// shard file is given).
func buildFeedSources(cfg *config.Config, shardPath string, channels *channel.Channels, log *logger.Log) []feedSource {
	if cfg.Feed.Replay.Enabled {
		return []feedSource{feed.NewReplayReader(cfg, channels)}
	}

	if shardPath == "" {
		return []feedSource{feed.NewReader(cfg, channels)}
	}

	shards, err := config.LoadProductShards(shardPath)
	if err != nil {
		if config.IsProductionLike(config.AppEnvironment()) {
			log.WithError(err).Error("failed to load shard configuration")
			os.Exit(1)
		}
		log.WithError(err).Warn("shard configuration unavailable, using a single feed connection")
		return []feedSource{feed.NewReader(cfg, channels)}
	}

	sources := make([]feedSource, 0, len(shards.Shards))
	for _, shard := range shards.Shards {
		sc := *cfg
		sc.Book.Products = shard.Products
		sources = append(sources, feed.NewReader(&sc, channels))
	}
	return sources
}
