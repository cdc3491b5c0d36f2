package graphid

import (
	"log/slog"
	"time"

	"github.com/hupe1980/graphid/authority"
	"github.com/hupe1980/graphid/internal/resource"
	"github.com/hupe1980/graphid/layout"
)

// DefaultBlockSize is the number of counters requested per block.
const DefaultBlockSize = 10000

type options struct {
	layout             layout.Config
	sizer              authority.BlockSizer
	blockSize          uint64
	growMaxBlockSize   uint64
	renewTimeout       time.Duration
	maxRenewAttempts   int
	initialBackoff     time.Duration
	maxBackoff         time.Duration
	renewBufferPercent float64
	renewCount         uint64
	disablePrefetch    bool
	limits             resource.Config
	placement          PlacementStrategy
	closeAuthority     bool
	metricsCollector   MetricsCollector
	logger             *Logger
}

// Option configures a Manager.
type Option func(*options)

// WithPartitionBits sets the width of the partition field.
// The layout is part of the storage format and must not change once data
// exists.
func WithPartitionBits(bits uint) Option {
	return func(o *options) {
		o.layout.PartitionBits = bits
	}
}

// WithLayout sets the full layout configuration.
func WithLayout(cfg layout.Config) Option {
	return func(o *options) {
		o.layout = cfg
	}
}

// WithBlockSize sets a fixed number of counters per block.
func WithBlockSize(size uint64) Option {
	return func(o *options) {
		o.blockSize = size
		o.growMaxBlockSize = 0
	}
}

// WithGrowingBlockSize starts with blocks of initial counters and doubles the
// size with every grant up to max.
//
// Long-running, busy instances converge to large blocks and rarely contact
// the authority; short-lived instances waste few counters.
func WithGrowingBlockSize(initial, max uint64) Option {
	return func(o *options) {
		o.blockSize = initial
		o.growMaxBlockSize = max
	}
}

// WithBlockSizer installs a custom sizing policy. Its upper bounds should not
// exceed the layout's counter limits; pools enforce the layout limits either
// way.
func WithBlockSizer(s authority.BlockSizer) Option {
	return func(o *options) {
		o.sizer = s
	}
}

// WithRenewTimeout bounds a single authority call.
func WithRenewTimeout(d time.Duration) Option {
	return func(o *options) {
		o.renewTimeout = d
	}
}

// WithMaxRenewAttempts bounds the authority calls per block renewal.
// Temporary failures beyond this ceiling surface as ErrAuthorityTemporary.
func WithMaxRenewAttempts(n int) Option {
	return func(o *options) {
		o.maxRenewAttempts = n
	}
}

// WithRenewBackoff shapes the exponential delay between renewal attempts.
func WithRenewBackoff(initial, max time.Duration) Option {
	return func(o *options) {
		o.initialBackoff = initial
		o.maxBackoff = max
	}
}

// WithRenewBuffer configures early renewal. A new block is requested once
// fewer than max(count, percent*blockSize) counters remain.
func WithRenewBuffer(percent float64, count uint64) Option {
	return func(o *options) {
		o.renewBufferPercent = percent
		o.renewCount = count
	}
}

// WithoutPrefetch disables early renewal. Blocks are then only requested when
// the current one is exhausted.
func WithoutPrefetch() Option {
	return func(o *options) {
		o.disablePrefetch = true
	}
}

// WithMaxConcurrentRenewals caps authority calls in flight across all pools.
func WithMaxConcurrentRenewals(n int64) Option {
	return func(o *options) {
		o.limits.MaxConcurrentRenewals = n
	}
}

// WithRenewalRate caps authority calls per second across all pools.
func WithRenewalRate(perSecond float64, burst int) Option {
	return func(o *options) {
		o.limits.RenewalsPerSecond = perSecond
		o.limits.Burst = burst
	}
}

// WithPlacement sets the strategy NewVertexIDPlaced uses.
func WithPlacement(p PlacementStrategy) Option {
	return func(o *options) {
		o.placement = p
	}
}

// WithCloseAuthority makes Close also close the authority.
func WithCloseAuthority() Option {
	return func(o *options) {
		o.closeAuthority = true
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &graphid.BasicMetricsCollector{}
//	m, _ := graphid.New(auth, graphid.WithMetricsCollector(metrics))
//	// ... use m ...
//	stats := metrics.GetStats()
//	fmt.Printf("Renewals: %d, Avg latency: %dns\n", stats.RenewalCount, stats.RenewalAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := graphid.NewJSONLogger(slog.LevelInfo)
//	m, _ := graphid.New(auth, graphid.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		blockSize:        DefaultBlockSize,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.blockSize == 0 {
		o.blockSize = DefaultBlockSize
	}
	return o
}
