package metrics

import (
	"strings"
	"sync/atomic"

	"bookflow/config"
)

// Feature identifies an optional metric family that can be switched off
// through configuration.
type Feature string

const (
	// FeatureChannelSize gates buffer occupancy gauges.
	FeatureChannelSize Feature = "channel_size"
	// FeatureDrops gates dropped-message counters.
	FeatureDrops Feature = "drops"
)

type featureState struct {
	channelSize bool
	drops       bool
}

var features atomic.Pointer[featureState]

func init() {
	features.Store(&featureState{channelSize: true, drops: true})
}

// Configure applies the metrics section of the runtime configuration.
func Configure(cfg config.MetricsConfig) {
	features.Store(&featureState{
		channelSize: cfg.ChannelSize,
		drops:       cfg.Drops,
	})
}

// IsFeatureEnabled reports whether the given metric family is enabled.
func IsFeatureEnabled(f Feature) bool {
	s := features.Load()
	switch f {
	case FeatureChannelSize:
		return s.channelSize
	case FeatureDrops:
		return s.drops
	default:
		return true
	}
}

func featureForMetric(name string) Feature {
	switch {
	case strings.HasSuffix(name, "_buffer_length"):
		return FeatureChannelSize
	case strings.HasSuffix(name, "_dropped"):
		return FeatureDrops
	default:
		return ""
	}
}
