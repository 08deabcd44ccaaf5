package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ServerConfig holds sink server configuration.
type ServerConfig struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the receiving side of record delivery: a small HTTP server
// that accepts POSTed log records, validates them, and writes them to
// its own structured log. It is the default development sink.
type Server struct {
	router          chi.Router
	httpServer      *http.Server
	logger          zerolog.Logger
	validate        *validator.Validate
	shutdownTimeout time.Duration

	mu sync.Mutex
	ln net.Listener
}

// recordPayload is the inbound record shape. Validation mirrors what
// the library emits: uuid identifiers, recognized levels and actions.
type recordPayload struct {
	ProcessID  string    `json:"processId" validate:"required,uuid4"`
	ParentID   string    `json:"parentId" validate:"omitempty,uuid4"`
	LogLevel   string    `json:"logLevel" validate:"required,oneof=debug info warn error"`
	ClassName  string    `json:"className" validate:"required"`
	MethodName string    `json:"methodName" validate:"required"`
	Action     string    `json:"action" validate:"required,oneof=Enter Exit Error"`
	Timestamp  time.Time `json:"timestamp" validate:"required"`
	Message    string    `json:"message" validate:"required"`
	Args       []any     `json:"args"`
	Error      string    `json:"error"`
}

// NewServer creates a sink server.
func NewServer(cfg ServerConfig, logger zerolog.Logger) *Server {
	s := &Server{
		logger:          logger.With().Str("component", "sink-server").Logger(),
		validate:        validator.New(),
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	r.Post("/api/v1/records", s.ingestRecord)

	return r
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the sink server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("sink server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on sink address: %w", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return s.httpServer.Serve(ln)
}

// Addr returns the address the server is listening on, or empty before
// Start has bound the listener. Useful when the configured address uses
// an ephemeral port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown gracefully shuts down the sink server, bounded by the
// configured shutdown timeout when one is set.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ingestRecord accepts one record and logs it at its own level.
func (s *Server) ingestRecord(w http.ResponseWriter, r *http.Request) {
	var payload recordPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.validate.Struct(payload); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid record: %v", err))
		return
	}

	event := s.logger.WithLevel(recordLevel(payload.LogLevel)).
		Str("process_id", payload.ProcessID).
		Str("class", payload.ClassName).
		Str("method", payload.MethodName).
		Str("action", payload.Action).
		Time("emitted_at", payload.Timestamp)
	if payload.ParentID != "" {
		event = event.Str("parent_id", payload.ParentID)
	}
	if payload.Error != "" {
		event = event.Str("error", payload.Error)
	}
	if len(payload.Args) > 0 {
		event = event.Interface("args", payload.Args)
	}
	event.Msg(payload.Message)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func recordLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
