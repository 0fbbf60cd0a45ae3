package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/basekick-labs/flightstats/internal/metrics"
	"github.com/basekick-labs/flightstats/pkg/models"
	"github.com/rs/zerolog"
)

// Sampler is anything that returns the samples of a set of fields for one
// flight.
type Sampler interface {
	Samples(ctx context.Context, fields []models.FieldID) (map[models.FieldID]models.Series, error)
}

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // reads pass through
	BreakerOpen                         // reads are rejected
	BreakerHalfOpen                     // one probe read is in flight
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds breaker configuration
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed reads that opens the
	// breaker. Zero disables the breaker.
	MaxFailures int

	// Cooldown is how long reads are rejected before one probe is let through.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns default breaker configuration
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
	}
}

// Breaker is shared by every flight read from one database. Once the
// database has failed MaxFailures reads in a row, remaining flights fail
// fast with ErrSourceUnavailable until Cooldown has passed.
type Breaker struct {
	config *BreakerConfig
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
}

// NewBreaker creates a breaker
func NewBreaker(cfg *BreakerConfig, logger zerolog.Logger) *Breaker {
	if cfg == nil {
		cfg = DefaultBreakerConfig()
	}
	return &Breaker{
		config: cfg,
		logger: logger.With().Str("component", "source-breaker").Logger(),
		now:    time.Now,
	}
}

// Guard wraps s so that its reads go through the breaker.
func (b *Breaker) Guard(s Sampler) Sampler {
	return &guardedSampler{breaker: b, src: s}
}

type guardedSampler struct {
	breaker *Breaker
	src     Sampler
}

func (g *guardedSampler) Samples(ctx context.Context, fields []models.FieldID) (map[models.FieldID]models.Series, error) {
	if !g.breaker.allow() {
		metrics.Get().IncSourceErrors()
		return nil, ErrSourceUnavailable
	}
	out, err := g.src.Samples(ctx, fields)
	g.breaker.record(err)
	return out, err
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	if b.config.MaxFailures <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			return false
		}
		b.setState(BreakerHalfOpen)
		return true
	case BreakerHalfOpen:
		// the probe is still running
		return false
	default:
		return true
	}
}

// isFailure reports whether err says the source is unhealthy. Cancellation
// and bad data do not.
func isFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, ErrMixedColumn) &&
		!errors.Is(err, ErrUnknownFlight)
}

func (b *Breaker) record(err error) {
	if b.config.MaxFailures <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen && errors.Is(err, context.Canceled) {
		// the probe never reached a verdict; the next read probes again
		b.setState(BreakerOpen)
		return
	}
	if !isFailure(err) {
		b.failures = 0
		if b.state == BreakerHalfOpen {
			b.setState(BreakerClosed)
		}
		return
	}

	b.failures++
	b.logger.Debug().
		Err(err).
		Int("failures", b.failures).
		Int("max_failures", b.config.MaxFailures).
		Msg("Source read failed")

	if b.state == BreakerHalfOpen || b.failures >= b.config.MaxFailures {
		b.openedAt = b.now()
		b.setState(BreakerOpen)
	}
}

func (b *Breaker) setState(next BreakerState) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	if next != BreakerOpen {
		b.failures = 0
	}
	b.logger.Warn().
		Str("from", prev.String()).
		Str("to", next.String()).
		Dur("cooldown", b.config.Cooldown).
		Msg("Source breaker state changed")
}
