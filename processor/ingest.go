package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appconfig "bookflow/config"
	"bookflow/internal/channel"
	"bookflow/internal/metrics"
	"bookflow/live"
	"bookflow/logger"
	"bookflow/models"
	"bookflow/writer"
)

// Ingestor routes raw feed messages to per-product live books and
// republishes book events on the shared events channel. All book
// mutation happens on the ingest goroutine; other components only see
// immutable snapshots and events.
type Ingestor struct {
	config    *appconfig.Config
	channels  *channel.Channels
	books     map[string]*live.Book
	events    chan live.Event
	archiver  *writer.Archiver
	stateReqs chan stateRequest
	ctx       context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	messagesProcessed int64
	gapsDetected      int64
	inconsistencies   int64
	unknownProducts   int64

	statusMu sync.RWMutex
	statuses []live.BookStatus
}

// NewIngestor creates live books for the configured products. The
// archiver is optional; when present the ingestor samples book states
// on an interval and queues them for archiving.
func NewIngestor(cfg *appconfig.Config, channels *channel.Channels, archiver *writer.Archiver) *Ingestor {
	eventBuffer := cfg.Book.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = 1024
	}
	events := make(chan live.Event, eventBuffer)

	books := make(map[string]*live.Book, len(cfg.Book.Products))
	for _, product := range cfg.Book.Products {
		books[product] = live.NewBook(product, cfg.Book.Strict, events)
	}

	return &Ingestor{
		config:    cfg,
		channels:  channels,
		books:     books,
		events:    events,
		archiver:  archiver,
		stateReqs: make(chan stateRequest),
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
	}
}

// stateRequest asks the ingest goroutine for a copy of one book's
// state, so readers never touch a book the goroutine is mutating.
type stateRequest struct {
	product string
	reply   chan stateReply
}

type stateReply struct {
	state     *models.BookState
	syncState live.SyncState
}

// BookView adapts a product to the replicator's source interface by
// routing snapshot reads through the ingest goroutine.
type BookView struct {
	product string
	ing     *Ingestor
}

func (v *BookView) ProductID() string { return v.product }

// Snapshot requests a deep copy from the ingest goroutine. Returns a
// nil state when the ingestor is stopped or the request times out.
func (v *BookView) Snapshot() (*models.BookState, live.SyncState) {
	req := stateRequest{product: v.product, reply: make(chan stateReply, 1)}

	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()

	select {
	case v.ing.stateReqs <- req:
	case <-timer.C:
		return nil, live.StateAwaitingSnapshot
	}
	select {
	case rep := <-req.reply:
		return rep.state, rep.syncState
	case <-timer.C:
		return nil, live.StateAwaitingSnapshot
	}
}

// View returns a concurrency-safe snapshot view of one product's book,
// or nil if the product is not configured.
func (ing *Ingestor) View(product string) *BookView {
	if ing.Book(product) == nil {
		return nil
	}
	return &BookView{product: product, ing: ing}
}

// Book returns the live book for a product, or nil if the product is
// not configured.
func (ing *Ingestor) Book(product string) *live.Book {
	ing.mu.RLock()
	defer ing.mu.RUnlock()
	return ing.books[product]
}

func (ing *Ingestor) Start(ctx context.Context) error {
	ing.mu.Lock()
	if ing.running {
		ing.mu.Unlock()
		return fmt.Errorf("ingestor already running")
	}
	ing.running = true
	ing.ctx = ctx
	ing.mu.Unlock()

	log := ing.log.WithComponent("book_ingest").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"products": ing.config.Book.Products,
		"strict":   ing.config.Book.Strict,
	}).Info("starting ingestor")

	ing.wg.Add(2)
	go ing.run()
	go ing.forwardEvents()

	log.Info("ingestor started successfully")
	return nil
}

func (ing *Ingestor) Stop() {
	ing.mu.Lock()
	ing.running = false
	ing.mu.Unlock()

	ing.log.WithComponent("book_ingest").Info("stopping ingestor")
	ing.wg.Wait()
	ing.log.WithComponent("book_ingest").Info("ingestor stopped")
}

// run is the single goroutine allowed to mutate books.
func (ing *Ingestor) run() {
	defer ing.wg.Done()

	log := ing.log.WithComponent("book_ingest")

	sampleInterval := ing.config.Archive.SampleInterval
	if sampleInterval <= 0 {
		sampleInterval = 10 * time.Second
	}
	sampleTicker := time.NewTicker(sampleInterval)
	defer sampleTicker.Stop()

	reportTicker := time.NewTicker(30 * time.Second)
	defer reportTicker.Stop()

	for {
		select {
		case <-ing.ctx.Done():
			return
		case msg, ok := <-ing.channels.Raw:
			if !ok {
				return
			}
			ing.process(&msg, log)
		case req := <-ing.stateReqs:
			ing.serveState(req)
		case <-sampleTicker.C:
			ing.sampleBooks()
		case <-reportTicker.C:
			ing.report()
		}
	}
}

func (ing *Ingestor) process(msg *models.StreamMessage, log *logger.Entry) {
	book, ok := ing.books[msg.ProductID]
	if !ok {
		atomic.AddInt64(&ing.unknownProducts, 1)
		log.WithFields(logger.Fields{"product": msg.ProductID}).Warn("message for unconfigured product, dropping")
		return
	}

	err := book.Ingest(msg)
	atomic.AddInt64(&ing.messagesProcessed, 1)
	logger.IncrementBookUpdate()
	metrics.IncrementBookUpdate(msg.ProductID)

	if err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"product":  msg.ProductID,
			"type":     string(msg.Type),
			"sequence": msg.Sequence,
		}).Error("book rejected message")
	}
}

// forwardEvents republishes per-book events on the shared events
// channel and keeps the gap and inconsistency counters.
func (ing *Ingestor) forwardEvents() {
	defer ing.wg.Done()

	for {
		select {
		case <-ing.ctx.Done():
			return
		case ev := <-ing.events:
			switch ev.Type {
			case live.EventGapDetected:
				atomic.AddInt64(&ing.gapsDetected, 1)
				metrics.IncrementSequenceGap(ev.ProductID)
			case live.EventInconsistency:
				atomic.AddInt64(&ing.inconsistencies, 1)
			}
			ing.channels.SendEvent(ing.ctx, ev)
		}
	}
}

func (ing *Ingestor) serveState(req stateRequest) {
	book, ok := ing.books[req.product]
	if !ok {
		req.reply <- stateReply{}
		return
	}
	state, syncState := book.Snapshot()
	req.reply <- stateReply{state: state, syncState: syncState}
}

// sampleBooks queues the current state of each synced book for
// archiving. Runs on the ingest goroutine so it never races a mutation.
func (ing *Ingestor) sampleBooks() {
	if ing.archiver == nil {
		return
	}
	now := time.Now()
	for product, book := range ing.books {
		if book.SyncState() != live.StateSynced {
			continue
		}
		ing.archiver.Archive(writer.BookSnapshot{
			ProductID: product,
			Time:      now,
			State:     book.DeepState(),
		})
	}
}

// Statuses returns the book summaries captured on the last report
// tick. They lag live state by up to the report interval.
func (ing *Ingestor) Statuses() []live.BookStatus {
	ing.statusMu.RLock()
	defer ing.statusMu.RUnlock()
	out := make([]live.BookStatus, len(ing.statuses))
	copy(out, ing.statuses)
	return out
}

func (ing *Ingestor) report() {
	statuses := make([]live.BookStatus, 0, len(ing.books))
	for _, book := range ing.books {
		statuses = append(statuses, book.Status())
	}
	ing.statusMu.Lock()
	ing.statuses = statuses
	ing.statusMu.Unlock()

	stats := metrics.IngestStats{
		MessagesProcessed: atomic.LoadInt64(&ing.messagesProcessed),
		GapsDetected:      atomic.LoadInt64(&ing.gapsDetected),
		Inconsistencies:   atomic.LoadInt64(&ing.inconsistencies),
		RawChannelLen:     len(ing.channels.Raw),
		RawChannelCap:     cap(ing.channels.Raw),
		EventsChannelLen:  len(ing.events),
		EventsChannelCap:  cap(ing.events),
	}
	for _, book := range ing.books {
		switch book.SyncState() {
		case live.StateSynced:
			stats.BooksSynced++
		case live.StateErrored:
			stats.BooksErrored++
		}
	}
	metrics.ReportIngest(ing.log, stats)
}
