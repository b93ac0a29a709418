package channel

import (
	"context"
	"sync"
	"time"

	"bookflow/internal/metrics"
	"bookflow/live"
	"bookflow/logger"
	"bookflow/models"
)

type ChannelStats struct {
	RawSent         int64
	EventsSent      int64
	CommandsSent    int64
	RawDropped      int64
	EventsDropped   int64
	CommandsDropped int64
}

// Channels carries the three pipeline streams: raw feed messages into the
// books, book events out of them, and trader commands toward the sink.
type Channels struct {
	Raw      chan models.StreamMessage
	Events   chan live.Event
	Commands chan models.TraderCommand

	stats               ChannelStats
	statsMutex          sync.RWMutex
	log                 *logger.Log
	metricsReportTicker *time.Ticker
}

func NewChannels(rawBufferSize, eventBufferSize, commandBufferSize int) *Channels {
	log := logger.GetLogger()

	c := &Channels{
		Raw:      make(chan models.StreamMessage, rawBufferSize),
		Events:   make(chan live.Event, eventBufferSize),
		Commands: make(chan models.TraderCommand, commandBufferSize),
		log:      log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size":     rawBufferSize,
		"event_buffer_size":   eventBufferSize,
		"command_buffer_size": commandBufferSize,
	}).Info("channels initialized")

	return c
}

// SendRaw enqueues a feed message without blocking. A full buffer counts
// as a drop.
func (c *Channels) SendRaw(ctx context.Context, msg models.StreamMessage) bool {
	select {
	case c.Raw <- msg:
		c.incrementRawSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementRawDropped()
		metrics.EmitDropMetric(c.log, metrics.DropMetricFeedRaw, msg.ProductID, string(msg.Type))
		return false
	}
}

func (c *Channels) SendEvent(ctx context.Context, ev live.Event) bool {
	select {
	case c.Events <- ev:
		c.incrementEventsSent()
		logger.RecordChannelMessage("book_events", 0)
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementEventsDropped()
		metrics.EmitDropMetric(c.log, metrics.DropMetricBookEvents, ev.ProductID, string(ev.Type))
		return false
	}
}

func (c *Channels) SendCommand(ctx context.Context, cmd models.TraderCommand) bool {
	select {
	case c.Commands <- cmd:
		c.incrementCommandsSent()
		logger.RecordChannelMessage("trader_commands", 0)
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementCommandsDropped()
		metrics.EmitDropMetric(c.log, metrics.DropMetricCommands, cmd.ProductID, string(cmd.Type))
		return false
	}
}

// StartMetricsReporting periodically emits buffer occupancy gauges until the
// context is cancelled.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	c.metricsReportTicker = time.NewTicker(30 * time.Second)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.metricsReportTicker.Stop()
				return
			case <-c.metricsReportTicker.C:
				c.reportChannelStats()
			}
		}
	}()
}

func (c *Channels) reportChannelStats() {
	stats := c.GetStats()

	c.log.WithComponent("channels").WithFields(logger.Fields{
		"raw_sent":         stats.RawSent,
		"events_sent":      stats.EventsSent,
		"commands_sent":    stats.CommandsSent,
		"raw_dropped":      stats.RawDropped,
		"events_dropped":   stats.EventsDropped,
		"commands_dropped": stats.CommandsDropped,
		"raw_len":          len(c.Raw),
		"raw_cap":          cap(c.Raw),
		"events_len":       len(c.Events),
		"events_cap":       cap(c.Events),
		"commands_len":     len(c.Commands),
		"commands_cap":     cap(c.Commands),
	}).Info("channel statistics")

	metrics.EmitMetric(c.log, "channel_buffers", "raw_buffer_length", len(c.Raw), "gauge", logger.Fields{
		"buffer":   "raw",
		"capacity": cap(c.Raw),
	})
	metrics.EmitMetric(c.log, "channel_buffers", "events_buffer_length", len(c.Events), "gauge", logger.Fields{
		"buffer":   "events",
		"capacity": cap(c.Events),
	})
	metrics.EmitMetric(c.log, "channel_buffers", "commands_buffer_length", len(c.Commands), "gauge", logger.Fields{
		"buffer":   "commands",
		"capacity": cap(c.Commands),
	})
}

func (c *Channels) Close() {
	if c.metricsReportTicker != nil {
		c.metricsReportTicker.Stop()
	}

	close(c.Raw)
	close(c.Events)
	close(c.Commands)

	c.log.WithComponent("channels").Info("all channels closed")
}

func (c *Channels) incrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementEventsSent() {
	c.statsMutex.Lock()
	c.stats.EventsSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementCommandsSent() {
	c.statsMutex.Lock()
	c.stats.CommandsSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementEventsDropped() {
	c.statsMutex.Lock()
	c.stats.EventsDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementCommandsDropped() {
	c.statsMutex.Lock()
	c.stats.CommandsDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
