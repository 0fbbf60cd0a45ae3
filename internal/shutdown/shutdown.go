package shutdown

import (
	"cmp"
	"context"
	"errors"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Shutdownable is an interface for components that can be shut down gracefully
type Shutdownable interface {
	Close() error
}

// ShutdownFunc is a function that performs cleanup during shutdown
type ShutdownFunc func(ctx context.Context) error

// Coordinator cancels in-flight work on SIGINT/SIGTERM and releases
// registered components once the run is over.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu         sync.Mutex
	components []namedComponent
	hooks      []namedHook

	shutdownOnce sync.Once
	triggerOnce  sync.Once
	shutdownCh   chan struct{}
	signal       os.Signal
}

type namedComponent struct {
	name      string
	component Shutdownable
	priority  int // Lower = shutdown first
}

type namedHook struct {
	name     string
	hook     ShutdownFunc
	priority int
}

// New creates a new shutdown coordinator
func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout:    timeout,
		logger:     logger.With().Str("component", "shutdown").Logger(),
		shutdownCh: make(chan struct{}),
	}
}

// Register registers a component for graceful shutdown
// Priority determines shutdown order (lower = shutdown first)
func (c *Coordinator) Register(name string, component Shutdownable, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components = append(c.components, namedComponent{
		name:      name,
		component: component,
		priority:  priority,
	})

	c.logger.Debug().
		Str("name", name).
		Int("priority", priority).
		Msg("Registered component for shutdown")
}

// RegisterHook registers a shutdown hook function. Hooks run before
// components.
func (c *Coordinator) RegisterHook(name string, hook ShutdownFunc, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hooks = append(c.hooks, namedHook{
		name:     name,
		hook:     hook,
		priority: priority,
	})

	c.logger.Debug().
		Str("name", name).
		Int("priority", priority).
		Msg("Registered shutdown hook")
}

// Context returns a context derived from parent that is cancelled when a
// shutdown signal arrives or TriggerShutdown is called. The returned cancel
// stops signal delivery and must be called.
func (c *Coordinator) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(quit)
		select {
		case sig := <-quit:
			c.logger.Warn().
				Str("signal", sig.String()).
				Msg("Received shutdown signal, cancelling run")
			c.mu.Lock()
			c.signal = sig
			c.mu.Unlock()
			c.TriggerShutdown()
			cancel()
		case <-c.shutdownCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Signal returns the signal that interrupted the run, or nil.
func (c *Coordinator) Signal() os.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signal
}

// Done is closed once shutdown has been triggered.
func (c *Coordinator) Done() <-chan struct{} {
	return c.shutdownCh
}

// Shutdown runs hooks then closes components, each group in priority
// order. Failures do not stop the sequence; they are joined into the
// returned error. A timeout skips whatever is left.
func (c *Coordinator) Shutdown() error {
	var errs []error

	c.shutdownOnce.Do(func() {
		c.triggerOnce.Do(func() {
			close(c.shutdownCh)
		})

		c.mu.Lock()
		components := slices.Clone(c.components)
		hooks := slices.Clone(c.hooks)
		c.mu.Unlock()

		slices.SortStableFunc(components, func(a, b namedComponent) int { return cmp.Compare(a.priority, b.priority) })
		slices.SortStableFunc(hooks, func(a, b namedHook) int { return cmp.Compare(a.priority, b.priority) })

		c.logger.Debug().
			Dur("timeout", c.timeout).
			Int("components", len(components)).
			Int("hooks", len(hooks)).
			Msg("Starting shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		start := time.Now()

		for _, h := range hooks {
			if ctx.Err() != nil {
				c.logger.Warn().Str("hook", h.name).Msg("Shutdown timeout reached, skipping remaining hooks")
				errs = append(errs, ctx.Err())
				return
			}
			if err := h.hook(ctx); err != nil {
				c.logger.Error().Err(err).Str("hook", h.name).Msg("Shutdown hook failed")
				errs = append(errs, err)
			}
		}

		for _, comp := range components {
			if ctx.Err() != nil {
				c.logger.Warn().Str("name", comp.name).Msg("Shutdown timeout reached, skipping remaining components")
				errs = append(errs, ctx.Err())
				return
			}
			if err := comp.component.Close(); err != nil {
				c.logger.Error().Err(err).Str("name", comp.name).Msg("Component shutdown failed")
				errs = append(errs, err)
				continue
			}
			c.logger.Debug().Str("name", comp.name).Msg("Component shutdown complete")
		}

		c.logger.Debug().Dur("duration", time.Since(start)).Msg("Shutdown complete")
	})

	return errors.Join(errs...)
}

// TriggerShutdown cancels contexts handed out by Context. Safe to call
// from multiple goroutines.
func (c *Coordinator) TriggerShutdown() {
	c.triggerOnce.Do(func() {
		c.logger.Info().Msg("Shutdown triggered")
		close(c.shutdownCh)
	})
}

// Priorities for the batch run
const (
	PriorityMetrics = 10 // Write the metrics textfile
	PriorityExport  = 20 // Flush open export files
	PrioritySource  = 90 // Database connections last
)
