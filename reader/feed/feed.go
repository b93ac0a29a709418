package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	appconfig "bookflow/config"
	"bookflow/internal/channel"
	"bookflow/logger"
	"bookflow/models"
)

// subscribeRequest is the handshake sent after connecting. The relay
// answers with a snapshot followed by sequenced updates.
type subscribeRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

var defaultChannels = []string{"full", "level2", "ticker", "matches"}

// Reader maintains one websocket connection per product and forwards
// decoded stream messages to the raw channel.
type Reader struct {
	config   *appconfig.Config
	channels *channel.Channels
	products []string
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

// NewReader creates a feed reader for the configured products.
func NewReader(cfg *appconfig.Config, channels *channel.Channels) *Reader {
	return &Reader{
		config:   cfg,
		channels: channels,
		products: cfg.Book.Products,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start opens the product streams.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("feed reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"url":      r.config.Feed.URL,
		"products": r.products,
	}).Info("starting feed reader")

	for _, product := range r.products {
		r.wg.Add(1)
		go r.streamProduct(product)
	}

	log.Info("feed reader started successfully")
	return nil
}

// Stop terminates all product streams.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("feed_reader").Info("stopping feed reader")
	r.wg.Wait()
	r.log.WithComponent("feed_reader").Info("feed reader stopped")
}

func (r *Reader) streamProduct(product string) {
	defer r.wg.Done()

	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{
		"product": product,
		"worker":  "product_stream",
	})

	reconnect := r.config.Feed.Reconnect
	delay := reconnect.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	attempts := 0

	for {
		if r.ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(r.ctx, r.config.Feed.URL, nil)
		if err != nil {
			attempts++
			if reconnect.MaxAttempts > 0 && attempts >= reconnect.MaxAttempts {
				log.WithError(err).Error("giving up on feed connection")
				return
			}
			log.WithError(err).WithFields(logger.Fields{"delay": delay.String()}).Warn("feed dial failed, retrying")
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = nextDelay(delay, reconnect)
			continue
		}

		attempts = 0
		delay = reconnect.BaseDelay
		if delay <= 0 {
			delay = time.Second
		}

		if err := r.consume(conn, product, log); err != nil {
			log.WithError(err).Warn("feed stream ended, reconnecting")
		}
		conn.Close()

		select {
		case <-r.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// consume runs the handshake and read loop for one connection.
func (r *Reader) consume(conn *websocket.Conn, product string, log *logger.Entry) error {
	if limit := r.config.Feed.ReadLimit; limit > 0 {
		conn.SetReadLimit(limit)
	}

	sub := subscribeRequest{
		Type:       "subscribe",
		ProductIDs: []string{product},
		Channels:   defaultChannels,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe handshake: %w", err)
	}
	log.Info("subscribed to feed")

	pingPeriod := r.config.Feed.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = 30 * time.Second
	}
	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	done := make(chan error, 1)
	go func() {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			r.handleFrame(product, payload, log)
		}
	}()

	for {
		select {
		case <-r.ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-done:
			return err
		case <-pinger.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (r *Reader) handleFrame(product string, payload []byte, log *logger.Entry) {
	var msg models.StreamMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.WithError(err).Warn("failed to unmarshal feed frame")
		return
	}
	if msg.Type == "" || msg.Type == models.MsgUnknown {
		log.Warn("unknown feed message type, dropping")
		return
	}
	if msg.ProductID == "" {
		msg.ProductID = product
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}

	if r.channels.SendRaw(r.ctx, msg) {
		logger.IncrementFeedRead(len(payload))
	} else {
		log.Warn("raw channel full, dropping message")
	}
}

func nextDelay(current time.Duration, cfg appconfig.ReconnectConfig) time.Duration {
	multiplier := cfg.BackoffMultiplier
	if multiplier < 2 {
		multiplier = 2
	}
	next := current * time.Duration(multiplier)
	max := cfg.MaxDelay
	if max <= 0 {
		max = time.Minute
	}
	if next > max {
		next = max
	}
	return next
}
