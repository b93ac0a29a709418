package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	appconfig "bookflow/config"
	"bookflow/internal/channel"
	"bookflow/logger"
	"bookflow/models"
)

// ReplayReader feeds recorded messages from a JSON-lines file instead
// of a live websocket. One message per line, canonical StreamMessage
// encoding, replayed as fast as the raw channel accepts them.
type ReplayReader struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

// NewReplayReader creates a replay source for cfg.Feed.Replay.Path.
func NewReplayReader(cfg *appconfig.Config, channels *channel.Channels) *ReplayReader {
	return &ReplayReader{
		config:   cfg,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start reads the replay file in the background; it returns once the
// file has been opened so main can report startup failures.
func (r *ReplayReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("replay reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	path := r.config.Feed.Replay.Path
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}

	log := r.log.WithComponent("replay_reader").WithFields(logger.Fields{"path": path})
	log.Info("starting replay")

	r.wg.Add(1)
	go r.replay(file, log)
	return nil
}

// Stop waits for the replay goroutine to finish.
func (r *ReplayReader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *ReplayReader) replay(file *os.File, log *logger.Entry) {
	defer r.wg.Done()
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	replayed := 0
	for scanner.Scan() {
		if r.ctx.Err() != nil {
			return
		}
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg models.StreamMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			log.WithError(err).WithFields(logger.Fields{"line": lineNo}).Warn("skipping malformed replay line")
			continue
		}

		// Blocking send: replay is only throttled by the consumer,
		// dropping recorded messages would corrupt book sequences.
		select {
		case r.channels.Raw <- msg:
			logger.IncrementFeedRead(len(line))
			replayed++
		case <-r.ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Error("replay read failed")
		return
	}
	log.WithFields(logger.Fields{"messages": replayed}).Info("replay complete")
}
