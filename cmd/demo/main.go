// Package main runs a small instrumented workload against the call
// trace library: nested calls, a sensitive call, and a failing call,
// routed per the loaded configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	calltrace "github.com/helixir/call-trace-service"
	"github.com/helixir/call-trace-service/internal/config"
	"github.com/helixir/call-trace-service/internal/observe"
	"github.com/helixir/call-trace-service/internal/sink"
)

// checkout is the demo workload's owner; nested calls on it correlate
// into one chain.
type checkout struct {
	tracer *calltrace.Tracer
}

func (c *checkout) place(ctx context.Context, orderID string) (any, error) {
	return c.tracer.Call(ctx, c, "Checkout", "Place",
		calltrace.Options{TopLevel: true},
		func(ctx context.Context, args ...any) (any, error) {
			if _, err := c.reserve(ctx, orderID); err != nil {
				return nil, err
			}
			if _, err := c.charge(ctx, orderID, "4111-1111-1111-1111"); err != nil {
				return nil, err
			}
			return "placed", nil
		}, orderID)
}

func (c *checkout) reserve(ctx context.Context, orderID string) (any, error) {
	return c.tracer.Call(ctx, c, "Checkout", "Reserve",
		calltrace.Options{Level: config.LevelDebug},
		func(ctx context.Context, args ...any) (any, error) {
			if orderID == "out-of-stock" {
				return nil, errors.New("no inventory for order")
			}
			return "reserved", nil
		}, orderID)
}

func (c *checkout) charge(ctx context.Context, orderID, card string) (any, error) {
	// Card numbers must not appear in log output.
	return c.tracer.Call(ctx, c, "Checkout", "Charge",
		calltrace.Options{Sensitive: true},
		func(ctx context.Context, args ...any) (any, error) {
			return "charged", nil
		}, orderID, card)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observe.NewLogger(observe.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     "stderr",
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "demo").Logger()

	metrics := observe.NewMetrics("calltrace_demo")

	client := sink.NewClient(sink.ClientConfig{
		Timeout:       cfg.Delivery.Timeout,
		RatePerSecond: cfg.Delivery.RatePerSecond,
		Burst:         cfg.Delivery.Burst,
	}, logger, metrics)

	tracer := calltrace.New(client, os.Stdout, logger, metrics)
	tracer.Configure(cfg.Routing.Partial())

	ctx := context.Background()
	co := &checkout{tracer: tracer}

	if _, err := co.place(ctx, "order-1001"); err != nil {
		logger.Error().Err(err).Msg("workload call failed")
	}
	if _, err := co.place(ctx, "out-of-stock"); err != nil {
		logger.Error().Err(err).Msg("workload call failed")
	}

	// Remote deliveries are fire-and-forget; wait for them before exit.
	client.Flush()
	return nil
}
