package lattice

import (
	"time"

	"github.com/hlsf/lattice/edgeblock"
	"github.com/hlsf/lattice/embed"
	"github.com/hlsf/lattice/growth"
	"github.com/hlsf/lattice/rank"
	"github.com/hlsf/lattice/shardstore"
	"github.com/hlsf/lattice/vectorstore"
)

type options struct {
	codec        edgeblock.Codec
	withFlags    bool
	provider     embed.Provider
	providerName string
	dim          int
	quantize     bool
	normalize    bool
	ranking      rank.Params
	growth       growth.Config
	mirrorRoot   string
	mirrorAfter  time.Duration
	embedSched   vectorstore.Scheduler
	observers    []shardstore.Observer
	metrics      MetricsCollector
	logger       *Logger
}

func defaultOptions() options {
	return options{
		codec:        edgeblock.Raw{},
		providerName: "local",
		dim:          64,
		quantize:     true,
		normalize:    true,
		ranking:      rank.Params{Alpha: rank.DefaultAlpha, Beta: rank.DefaultBeta},
		metrics:      NoOpMetrics{},
		logger:       NewLogger(nil),
	}
}

// Option configures Open behavior.
type Option func(*options)

// WithCodec sets the edge-block codec. If nil is passed the raw codec is
// used.
func WithCodec(c edgeblock.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = edgeblock.Raw{}
		}
		o.codec = c
	}
}

// WithFlags persists the optional per-edge flags column.
func WithFlags() Option {
	return func(o *options) { o.withFlags = true }
}

// WithProvider sets the embedding provider and the name under which its
// vectors are stored. Vectors from different providers never mix.
func WithProvider(name string, p embed.Provider) Option {
	return func(o *options) {
		o.providerName = name
		o.provider = p
		if p != nil {
			o.dim = p.Dim()
		}
	}
}

// WithDimension sets the embedding dimension for the default local
// provider.
func WithDimension(dim int) Option {
	return func(o *options) { o.dim = dim }
}

// WithoutQuantization stores raw float32 vectors instead of 8-bit
// quantized ones.
func WithoutQuantization() Option {
	return func(o *options) { o.quantize = false }
}

// WithRanking overrides the hybrid suggestion parameters.
func WithRanking(p rank.Params) Option {
	return func(o *options) { o.ranking = p }
}

// WithGrowth overrides the breathing engine configuration.
func WithGrowth(cfg growth.Config) Option {
	return func(o *options) { o.growth = cfg }
}

// WithMirror enables the best-effort JSON export mirror under root.
// flushAfter > 0 schedules automatic flushes; zero leaves flushing to
// ExportMirror.
func WithMirror(root string, flushAfter time.Duration) Option {
	return func(o *options) {
		o.mirrorRoot = root
		o.mirrorAfter = flushAfter
	}
}

// WithEmbedScheduler sets the scheduler driving deferred embedding of
// newly interned tokens. The default flushes after a short idle delay;
// tests pass vectorstore.SyncScheduler to embed inline.
func WithEmbedScheduler(s vectorstore.Scheduler) Option {
	return func(o *options) { o.embedSched = s }
}

// WithObservers registers additional store change observers.
func WithObservers(obs ...shardstore.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs...) }
}

// WithMetrics sets the metrics collector. If nil is passed NoOpMetrics is
// used.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoOpMetrics{}
		}
		o.metrics = m
	}
}

// WithLogger sets the logger. If nil is passed the default text logger is
// used.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NewLogger(nil)
		}
		o.logger = l
	}
}

func applyOptions(optFns []Option) options {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}
