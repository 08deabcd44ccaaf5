package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/helixir/call-trace-service/internal/config"
	"github.com/helixir/call-trace-service/internal/observe"
)

// Deliverer forwards a record to one remote endpoint. Implementations
// are fire-and-forget: failures are reported locally and never surface
// to the instrumented caller.
type Deliverer interface {
	Deliver(endpoint string, rec Record)
}

// Router routes records per the active routing configuration: local
// output in dev mode, remote delivery otherwise. Routing never returns
// an error; logging is a side channel, not a gate on call semantics.
type Router struct {
	store     *config.Store
	deliverer Deliverer
	out       io.Writer
	logger    zerolog.Logger
	metrics   *observe.Metrics
}

// NewRouter creates a router. out is the dev-mode destination and
// defaults to standard output when nil; metrics may be nil.
func NewRouter(store *config.Store, deliverer Deliverer, out io.Writer, logger zerolog.Logger, metrics *observe.Metrics) *Router {
	if out == nil {
		out = os.Stdout
	}
	return &Router{
		store:     store,
		deliverer: deliverer,
		out:       out,
		logger:    logger.With().Str("component", "router").Logger(),
		metrics:   metrics,
	}
}

// Route dispatches one record. The configuration is read per record, so
// an update during an in-flight call applies to that call's later
// records.
func (r *Router) Route(rec Record) {
	if r.metrics != nil {
		r.metrics.RecordEmitted(string(rec.Action), rec.LogLevel)
	}

	cfg := r.store.Get()

	if cfg.DevMode {
		line := rec.Message
		if len(rec.Args) > 0 {
			if encoded, err := json.Marshal(rec.Args); err == nil {
				line += " " + string(encoded)
			} else {
				r.logger.Error().Err(err).Msg("failed to encode record args")
			}
		}
		fmt.Fprintln(r.out, line)
		return
	}

	switch cfg.LogMode {
	case config.LogModeSingle:
		if r.metrics != nil {
			r.metrics.RecordDelivered(config.LogModeSingle)
		}
		r.deliverer.Deliver(cfg.Endpoint, rec)

	case config.LogModeMultiple:
		for _, ep := range cfg.EndpointParams {
			// Exact level match, not >=.
			if ep.LogLevel != rec.LogLevel {
				continue
			}
			if r.metrics != nil {
				r.metrics.RecordDelivered(config.LogModeMultiple)
			}
			r.deliverer.Deliver(ep.Endpoint, rec)
		}
	}
}
