package config

import (
	"fmt"
	"sync"
)

// Log modes recognized by the routing configuration.
const (
	// LogModeSingle routes every record to one endpoint.
	LogModeSingle = "single"
	// LogModeMultiple routes records to per-level endpoints.
	LogModeMultiple = "multiple"
)

// DefaultEndpoint is the endpoint used before any explicit configuration
// is applied, and the fallback when switching to single mode without one.
const DefaultEndpoint = "http://localhost:9480/api/v1/records"

// Log levels recognized by routing configuration and log records.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

var validLogLevels = map[string]bool{
	LevelDebug: true,
	LevelInfo:  true,
	LevelWarn:  true,
	LevelError: true,
}

// ValidLevel reports whether level is one of the recognized log levels.
func ValidLevel(level string) bool {
	return validLogLevels[level]
}

// EndpointParam binds a log level to the endpoint that receives records
// of exactly that level in multiple mode.
type EndpointParam struct {
	// LogLevel is the level this endpoint is registered for.
	LogLevel string `json:"logLevel" mapstructure:"log_level"`
	// Endpoint is the HTTP(S) URL records are POSTed to.
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
}

// Routing is the active routing configuration. Exactly one Routing is
// active process-wide at a time; it is replaced atomically by Store.Set,
// never mutated in place.
type Routing struct {
	// DevMode disables remote delivery and writes records to local output.
	DevMode bool `json:"devMode"`
	// LogMode selects single- or multiple-endpoint routing.
	LogMode string `json:"logMode"`
	// Endpoint is the delivery target in single mode.
	Endpoint string `json:"endpoint,omitempty"`
	// EndpointParams are the per-level delivery targets in multiple mode.
	EndpointParams []EndpointParam `json:"endpointParams,omitempty"`
}

// Partial is a partial routing update. Nil pointer fields are treated as
// absent. Validation requires DevMode and LogMode to be present on every
// update; the remaining fields are required by the selected mode.
type Partial struct {
	DevMode        *bool           `json:"devMode,omitempty"`
	LogMode        *string         `json:"logMode,omitempty"`
	Endpoint       *string         `json:"endpoint,omitempty"`
	EndpointParams []EndpointParam `json:"endpointParams,omitempty"`
}

// DefaultRouting returns the built-in routing configuration active
// before any explicit Set.
func DefaultRouting() Routing {
	return Routing{
		DevMode:  true,
		LogMode:  LogModeSingle,
		Endpoint: DefaultEndpoint,
	}
}

// Store holds the single active routing configuration. It is safe for
// concurrent use; Get returns snapshots and Set replaces the whole
// configuration only after the update validates.
type Store struct {
	mu      sync.RWMutex
	current Routing
}

// NewStore creates a Store initialized to the built-in default routing.
func NewStore() *Store {
	return &Store{current: DefaultRouting()}
}

// Get returns a snapshot of the current routing configuration. The
// returned value shares no mutable state with the store.
func (s *Store) Get() Routing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.current
	if len(s.current.EndpointParams) > 0 {
		snap.EndpointParams = make([]EndpointParam, len(s.current.EndpointParams))
		copy(snap.EndpointParams, s.current.EndpointParams)
	}
	return snap
}

// Set validates the partial update and, on success, merges it into the
// current configuration. On validation failure the stored configuration
// is left unchanged and the error describes the first rejected field.
//
// Merge policy:
//   - a mode switch resets the endpoint-shape fields: switching to
//     single adopts the incoming endpoint or falls back to the built-in
//     default endpoint; switching to multiple adopts the incoming
//     endpoint params or an empty list;
//   - staying in multiple mode appends the incoming endpoint params to
//     the existing ones (duplicates are kept);
//   - everything else overlays the existing configuration.
func (s *Store) Set(p Partial) error {
	if err := validatePartial(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = merge(s.current, p)
	return nil
}

func validatePartial(p Partial) error {
	if p.DevMode == nil {
		return fmt.Errorf("routing update rejected: devMode is required")
	}
	if p.LogMode == nil {
		return fmt.Errorf("routing update rejected: logMode is required")
	}

	switch *p.LogMode {
	case LogModeSingle:
		if p.Endpoint == nil {
			return fmt.Errorf("routing update rejected: endpoint is required in single mode")
		}
	case LogModeMultiple:
		for i, ep := range p.EndpointParams {
			if !ValidLevel(ep.LogLevel) {
				return fmt.Errorf("routing update rejected: endpointParams[%d] has unrecognized log level %q", i, ep.LogLevel)
			}
			if ep.Endpoint == "" {
				return fmt.Errorf("routing update rejected: endpointParams[%d] is missing an endpoint", i)
			}
		}
	default:
		return fmt.Errorf("routing update rejected: unrecognized logMode %q", *p.LogMode)
	}

	return nil
}

func merge(existing Routing, p Partial) Routing {
	next := existing
	next.DevMode = *p.DevMode

	switch {
	case *p.LogMode != existing.LogMode:
		// Mode switch resets the endpoint-shape fields so stale values
		// from the previous mode cannot leak through.
		next.LogMode = *p.LogMode
		if *p.LogMode == LogModeSingle {
			// An empty incoming endpoint falls back to the built-in
			// default on a mode switch.
			if p.Endpoint != nil && *p.Endpoint != "" {
				next.Endpoint = *p.Endpoint
			} else {
				next.Endpoint = DefaultEndpoint
			}
			next.EndpointParams = nil
		} else {
			next.EndpointParams = append([]EndpointParam(nil), p.EndpointParams...)
			next.Endpoint = ""
		}

	case *p.LogMode == LogModeMultiple:
		// Staying in multiple mode accumulates endpoints rather than
		// replacing them.
		params := make([]EndpointParam, 0, len(existing.EndpointParams)+len(p.EndpointParams))
		params = append(params, existing.EndpointParams...)
		params = append(params, p.EndpointParams...)
		next.EndpointParams = params

	default:
		if p.Endpoint != nil {
			next.Endpoint = *p.Endpoint
		}
	}

	return next
}
