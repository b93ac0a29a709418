package replicator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bookflow/book"
	appconfig "bookflow/config"
	"bookflow/diff"
	"bookflow/internal/channel"
	"bookflow/internal/metrics"
	"bookflow/live"
	"bookflow/logger"
	"bookflow/models"
)

// Source provides race-free snapshots of the book being mirrored. A
// *live.Book satisfies it when driven from the caller's goroutine; in
// the running pipeline the ingestor hands out a view that requests the
// copy from the ingest goroutine.
type Source interface {
	ProductID() string
	Snapshot() (*models.BookState, live.SyncState)
}

// Replicator keeps a transformed mirror of a source book and emits the
// commands needed to hold a target book in sync with that mirror.
type Replicator struct {
	config   appconfig.ReplicatorConfig
	rules    Rules
	source   Source
	channels *channel.Channels
	defaults models.DefaultFields

	mirror *book.Engine
	dirty  bool
	synced int64

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

// NewReplicator creates a replicator for one source book. Commands are
// written to the shared command channel.
func NewReplicator(cfg appconfig.ReplicatorConfig, source Source, channels *channel.Channels) (*Replicator, error) {
	rules, err := RulesFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	target := cfg.TargetProduct
	if target == "" {
		target = source.ProductID()
	}

	return &Replicator{
		config:   cfg,
		rules:    rules,
		source:   source,
		channels: channels,
		defaults: models.DefaultFields{ProductID: target, OrderType: "limit", PostOnly: true},
		mirror:   book.New(target),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}, nil
}

// Mirror returns the current transformed mirror state.
func (r *Replicator) Mirror() *models.BookState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mirror.State()
}

func (r *Replicator) start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("replicator already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("replicator").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting replicator")

	r.wg.Add(1)
	go r.run()

	log.Info("replicator started successfully")
	return nil
}

func (r *Replicator) stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("replicator").Info("stopping replicator")
	r.wg.Wait()
	r.log.WithComponent("replicator").Info("replicator stopped")
}

// Start exposes the start method for external callers.
func (r *Replicator) Start(ctx context.Context) error { return r.start(ctx) }

// Stop exposes the stop method for external callers.
func (r *Replicator) Stop() { r.stop() }

func (r *Replicator) run() {
	defer r.wg.Done()

	interval := r.config.SyncInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-r.channels.Events:
			if !ok {
				return
			}
			r.handleEvent(ev)
		case <-ticker.C:
			r.syncIfDirty()
		}
	}
}

func (r *Replicator) handleEvent(ev live.Event) {
	if ev.ProductID != r.source.ProductID() {
		return
	}
	switch ev.Type {
	case live.EventSnapshotApplied, live.EventUpdateApplied:
		r.mu.Lock()
		r.dirty = true
		r.mu.Unlock()
	case live.EventGapDetected, live.EventInconsistency:
		// The source is resyncing or broken; hold the mirror until the
		// next applied snapshot.
		r.log.WithComponent("replicator").WithFields(logger.Fields{
			"product": ev.ProductID,
			"event":   string(ev.Type),
		}).Warn("source book out of sync, pausing replication")
	}
}

func (r *Replicator) syncIfDirty() {
	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return
	}
	r.dirty = false
	r.mu.Unlock()

	if err := r.Sync(); err != nil {
		r.log.WithComponent("replicator").WithError(err).Error("mirror sync failed")
	}
}

// Sync recomputes the transformed mirror from the source book, diffs it
// against the previous mirror and emits the difference as commands. An
// unsynced source is a no-op.
func (r *Replicator) Sync() error {
	state, syncState := r.source.Snapshot()
	if state == nil || syncState != live.StateSynced {
		return nil
	}

	target, err := r.rules.Transform(r.mirror.ProductID(), state)
	if err != nil {
		return err
	}

	r.mu.Lock()
	previous := r.mirror
	r.mirror = target
	r.mu.Unlock()

	d := diff.CompareByLevel(previous, target, true, true)
	commands := diff.GenerateDiffCommands(d, r.defaults)
	if len(commands) == 0 {
		return nil
	}

	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, cmd := range commands {
		if r.channels.SendCommand(ctx, cmd) {
			metrics.IncrementCommandPublished(cmd.ProductID)
		}
	}

	r.mu.Lock()
	r.synced++
	count := r.synced
	r.mu.Unlock()

	r.log.WithComponent("replicator").WithFields(logger.Fields{
		"product":  r.mirror.ProductID(),
		"commands": len(commands),
		"sequence": state.Sequence,
		"syncs":    count,
	}).Debug("mirror synced")
	return nil
}
