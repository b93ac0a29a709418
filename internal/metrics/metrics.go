// Registers:
//
//	#bookflow_book_updates_total
//	#bookflow_sequence_gaps_total
//	#bookflow_commands_published_total
//	#go_* and process_* system metrics
//
// Exposes them on :2112/metrics using Prometheus HTTP handler
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once              sync.Once
	bookUpdates       *prometheus.CounterVec
	sequenceGaps      *prometheus.CounterVec
	commandsPublished *prometheus.CounterVec
)

func Init() {
	once.Do(func() {
		bookUpdates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookflow_book_updates_total",
				Help: "Number of feed messages applied to live books",
			},
			[]string{"product"},
		)

		sequenceGaps = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookflow_sequence_gaps_total",
				Help: "Number of sequence gaps detected in the feed",
			},
			[]string{"product"},
		)

		commandsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookflow_commands_published_total",
				Help: "Number of trader commands published downstream",
			},
			[]string{"product"},
		)

		_ = prometheus.Register(bookUpdates)
		_ = prometheus.Register(sequenceGaps)
		_ = prometheus.Register(commandsPublished)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe("0.0.0.0:2112", nil); err != nil {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

// IncrementBookUpdate increases the applied-update counter for a product.
func IncrementBookUpdate(product string) {
	if bookUpdates != nil {
		bookUpdates.WithLabelValues(product).Inc()
	}
}

// IncrementSequenceGap increases the gap counter for a product.
func IncrementSequenceGap(product string) {
	if sequenceGaps != nil {
		sequenceGaps.WithLabelValues(product).Inc()
	}
}

// IncrementCommandPublished increases the published-command counter for a product.
func IncrementCommandPublished(product string) {
	if commandsPublished != nil {
		commandsPublished.WithLabelValues(product).Inc()
	}
}
