package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Core during construction.
type Option func(*coreConfig)

// coreConfig collects construction-time settings before wiring.
type coreConfig struct {
	logger           *DebugLogger
	eventBuffer      int
	promRegisterer   prometheus.Registerer
	metricsEnabled   bool
	keywordTable     KeywordTable
	defaultRetries   int
	pollInterval     time.Duration
	backoff          BackoffConfig
	breakersEnabled  bool
	hbInterval       time.Duration
	degradedAfter    int
	failedAfter      int
	store            StateStore
	snapshotInterval time.Duration
}

func defaultCoreConfig() coreConfig {
	return coreConfig{
		eventBuffer:      DefaultEventBuffer,
		defaultRetries:   DefaultMaxRetries,
		pollInterval:     DefaultPollInterval,
		backoff:          DefaultBackoffConfig(),
		hbInterval:       DefaultHeartbeatInterval,
		degradedAfter:    DefaultDegradedAfter,
		failedAfter:      DefaultFailedAfter,
		snapshotInterval: DefaultSnapshotInterval,
	}
}

// WithLogger sets the debug logger used by all core components.
func WithLogger(l *DebugLogger) Option {
	return func(c *coreConfig) { c.logger = l }
}

// WithEventBuffer sets the lifecycle event channel capacity.
func WithEventBuffer(n int) Option {
	return func(c *coreConfig) {
		if n > 0 {
			c.eventBuffer = n
		}
	}
}

// WithMetrics enables Prometheus collection on the given registerer. A nil
// registerer uses a private registry.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *coreConfig) {
		c.metricsEnabled = true
		c.promRegisterer = reg
	}
}

// WithKeywordTable overrides the capability inference keyword table.
func WithKeywordTable(table KeywordTable) Option {
	return func(c *coreConfig) { c.keywordTable = table }
}

// WithDefaultMaxRetries sets the retry budget applied to produced subtasks.
func WithDefaultMaxRetries(n int) Option {
	return func(c *coreConfig) {
		if n >= 0 {
			c.defaultRetries = n
		}
	}
}

// WithPollInterval sets the scheduler dispatch poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *coreConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithBackoff sets the retry backoff policy.
func WithBackoff(cfg BackoffConfig) Option {
	return func(c *coreConfig) { c.backoff = cfg }
}

// WithBreakers enables per-worker dispatch circuit breakers.
func WithBreakers() Option {
	return func(c *coreConfig) { c.breakersEnabled = true }
}

// WithHealthThresholds sets the heartbeat interval and the missed-interval
// counts for degradation and failure.
func WithHealthThresholds(interval time.Duration, degradedAfter, failedAfter int) Option {
	return func(c *coreConfig) {
		if interval > 0 {
			c.hbInterval = interval
		}
		if degradedAfter > 0 {
			c.degradedAfter = degradedAfter
		}
		if failedAfter > 0 {
			c.failedAfter = failedAfter
		}
	}
}

// WithStateStore enables periodic state snapshots to the given store.
func WithStateStore(store StateStore) Option {
	return func(c *coreConfig) { c.store = store }
}

// WithSnapshotInterval sets how often state snapshots are written.
func WithSnapshotInterval(d time.Duration) Option {
	return func(c *coreConfig) {
		if d > 0 {
			c.snapshotInterval = d
		}
	}
}
