// Package calltrace instruments function calls with structured
// Enter/Exit/Error log records. Nested calls on the same owner are
// correlated into a chain without callers threading any identifiers
// through their signatures: each instrumented call gets a fresh process
// id, child calls link to the most recent call on their owner, and
// correlation state is reclaimed with the owner.
//
// Records are routed per the active routing configuration: local
// standard output in dev mode, otherwise HTTP delivery to one endpoint
// or to every endpoint registered for the record's exact log level.
// Logging is a side channel; it never alters the wrapped call's result
// or error.
package calltrace

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/helixir/call-trace-service/internal/config"
	"github.com/helixir/call-trace-service/internal/correlation"
	"github.com/helixir/call-trace-service/internal/emit"
	"github.com/helixir/call-trace-service/internal/observe"
)

// Options configures one instrumented call.
type Options struct {
	// TopLevel marks the call as the root of a new correlation chain.
	// Top-level calls get a fresh parentless context and remove their
	// owner's registry entry once the outcome is known.
	TopLevel bool
	// Level is the record log level; empty defaults to info. Error
	// records force the error level regardless.
	Level string
	// Sensitive omits the call arguments from the Enter record.
	Sensitive bool
}

// Func is the shape of an instrumented function body.
type Func func(ctx context.Context, args ...any) (any, error)

// Tracer is the instrumentation entry point. It wires the configuration
// store, the correlation registry, and record routing together.
type Tracer struct {
	store    *config.Store
	registry *correlation.Registry
	router   *emit.Router
	logger   zerolog.Logger
	metrics  *observe.Metrics
}

// New creates a Tracer with the built-in default routing configuration.
// deliverer handles remote delivery; out is the dev-mode destination and
// defaults to standard output when nil; metrics may be nil.
func New(deliverer emit.Deliverer, out io.Writer, logger zerolog.Logger, metrics *observe.Metrics) *Tracer {
	store := config.NewStore()
	return &Tracer{
		store:    store,
		registry: correlation.NewRegistry(metrics),
		router:   emit.NewRouter(store, deliverer, out, logger, metrics),
		logger:   logger.With().Str("component", "tracer").Logger(),
		metrics:  metrics,
	}
}

// Store exposes the tracer's configuration store for callers that want
// validation errors from updates.
func (t *Tracer) Store() *config.Store {
	return t.store
}

// Configure applies a partial routing configuration. It is the
// initialization boundary: validation failures are logged and
// swallowed, leaving the previous configuration active. Use
// Store().Set to observe the error instead.
func (t *Tracer) Configure(p config.Partial) {
	if err := t.store.Set(p); err != nil {
		if t.metrics != nil {
			t.metrics.RecordConfigUpdate("rejected")
		}
		t.logger.Error().Err(err).Msg("routing configuration rejected")
		return
	}
	if t.metrics != nil {
		t.metrics.RecordConfigUpdate("applied")
	}
}

// Call runs fn instrumented. An Enter record is emitted before fn
// starts; after fn's outcome is known, an Exit record is emitted on
// success or an Error record on failure, and fn's result and error are
// returned unchanged. Panics from fn propagate un-recovered and emit no
// record.
//
// owner is the receiver the call executes on and is the correlation
// key; it is ignored for top-level calls, which always start a fresh
// chain.
func (t *Tracer) Call(ctx context.Context, owner any, class, method string, opts Options, fn Func, args ...any) (any, error) {
	level := opts.Level
	if level == "" {
		level = config.LevelInfo
	}

	var callCtx *correlation.Context
	if opts.TopLevel {
		callCtx = t.registry.BeginTopLevel()
	} else {
		callCtx = t.registry.BeginChild(owner)
	}

	t.router.Route(emit.NewEnter(callCtx, class, method, level, args, opts.Sensitive))

	result, err := fn(ctx, args...)

	if err != nil {
		t.router.Route(emit.NewError(callCtx, class, method, err))
	} else {
		t.router.Route(emit.NewExit(callCtx, class, method, level))
	}

	if opts.TopLevel {
		t.registry.End(owner)
	}

	return result, err
}

// Wrap returns fn as an instrumented Func bound to the given owner,
// names, and options. It is the decorator form of Call.
func (t *Tracer) Wrap(owner any, class, method string, opts Options, fn Func) Func {
	return func(ctx context.Context, args ...any) (any, error) {
		return t.Call(ctx, owner, class, method, opts, fn, args...)
	}
}
