// Package sink implements record delivery to remote log sinks and the
// receiving sink server used in development deployments.
package sink

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/helixir/call-trace-service/internal/emit"
	"github.com/helixir/call-trace-service/internal/observe"
)

// ClientConfig holds outbound delivery settings.
type ClientConfig struct {
	// Timeout is the per-request delivery timeout.
	Timeout time.Duration
	// RatePerSecond caps outbound deliveries; zero disables the limiter.
	RatePerSecond float64
	// Burst is the limiter burst size when the limiter is enabled.
	Burst int
}

// Client delivers records to remote sinks over HTTP. Delivery is
// fire-and-forget: transport failures and non-2xx responses are logged
// and counted but never propagate to the instrumented caller.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
	metrics *observe.Metrics
	wg      sync.WaitGroup
}

// NewClient creates a delivery client. metrics may be nil.
func NewClient(cfg ClientConfig, logger zerolog.Logger, metrics *observe.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	c := &Client{
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "sink-client").Logger(),
		metrics: metrics,
	}
	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	return c
}

// Deliver posts the record to endpoint in the background and returns
// immediately.
func (c *Client) Deliver(endpoint string, rec emit.Record) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.send(endpoint, rec)
	}()
}

// Flush blocks until all in-flight deliveries have finished.
func (c *Client) Flush() {
	c.wg.Wait()
}

func (c *Client) send(endpoint string, rec emit.Record) {
	if c.limiter != nil && !c.limiter.Allow() {
		if c.metrics != nil {
			c.metrics.RecordDeliveryDropped()
		}
		c.logger.Warn().
			Str("endpoint", endpoint).
			Str("process_id", rec.ProcessID).
			Msg("delivery dropped by rate limiter")
		return
	}

	body, err := json.Marshal(rec)
	if err != nil {
		c.recordFailure("encode")
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("failed to encode record")
		return
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		c.recordFailure("request")
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("failed to build delivery request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.recordFailure("network")
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("record delivery failed")
		return
	}
	// The response body is not consumed; only transport-level failures
	// are observed.
	resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordDeliveryDuration(time.Since(start).Seconds())
	}

	if resp.StatusCode >= 300 {
		c.recordFailure("status")
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("endpoint", endpoint).
			Msg("record delivery rejected")
	}
}

func (c *Client) recordFailure(reason string) {
	if c.metrics != nil {
		c.metrics.RecordDeliveryFailed(reason)
	}
}
