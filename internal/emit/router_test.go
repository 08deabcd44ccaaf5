package emit

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/call-trace-service/internal/config"
	"github.com/helixir/call-trace-service/internal/correlation"
)

// captureDeliverer records deliveries instead of performing them.
type captureDeliverer struct {
	mu         sync.Mutex
	deliveries map[string][]Record
}

func newCaptureDeliverer() *captureDeliverer {
	return &captureDeliverer{deliveries: make(map[string][]Record)}
}

func (d *captureDeliverer) Deliver(endpoint string, rec Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries[endpoint] = append(d.deliveries[endpoint], rec)
}

func (d *captureDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, recs := range d.deliveries {
		n += len(recs)
	}
	return n
}

func testRecord(level string) Record {
	ctx := &correlation.Context{ProcessID: "p1"}
	return NewEnter(ctx, "ReportService", "Generate", level, nil, false)
}

func TestRoute_DevModeWritesLocally(t *testing.T) {
	store := config.NewStore() // default: devMode=true
	deliverer := newCaptureDeliverer()
	var out bytes.Buffer

	r := NewRouter(store, deliverer, &out, zerolog.Nop(), nil)
	r.Route(testRecord(config.LevelInfo))

	assert.Contains(t, out.String(), "Enter ReportService.Generate")
	// Dev mode performs no outbound delivery regardless of mode.
	assert.Zero(t, deliverer.count())
}

func TestRoute_DevModeAppendsArgsJSON(t *testing.T) {
	store := config.NewStore()
	var out bytes.Buffer
	r := NewRouter(store, newCaptureDeliverer(), &out, zerolog.Nop(), nil)

	ctx := &correlation.Context{ProcessID: "p1"}
	r.Route(NewEnter(ctx, "ReportService", "Generate", config.LevelInfo, []any{"q4", 2026}, false))

	line := strings.TrimSpace(out.String())
	assert.True(t, strings.HasSuffix(line, ` ["q4",2026]`), "line %q should end with args JSON", line)
}

func TestRoute_SingleMode(t *testing.T) {
	store := config.NewStore()
	require.NoError(t, store.Set(config.Partial{
		DevMode:  boolPtr(false),
		LogMode:  strPtr(config.LogModeSingle),
		Endpoint: strPtr("https://logs.example.com/ingest"),
	}))
	deliverer := newCaptureDeliverer()
	var out bytes.Buffer

	r := NewRouter(store, deliverer, &out, zerolog.Nop(), nil)
	r.Route(testRecord(config.LevelWarn))

	assert.Len(t, deliverer.deliveries["https://logs.example.com/ingest"], 1)
	assert.Empty(t, out.String())
}

func TestRoute_MultipleModeExactLevelMatch(t *testing.T) {
	store := config.NewStore()
	require.NoError(t, store.Set(config.Partial{
		DevMode: boolPtr(false),
		LogMode: strPtr(config.LogModeMultiple),
		EndpointParams: []config.EndpointParam{
			{LogLevel: config.LevelWarn, Endpoint: "https://warn-a.example.com"},
			{LogLevel: config.LevelWarn, Endpoint: "https://warn-b.example.com"},
			{LogLevel: config.LevelError, Endpoint: "https://error.example.com"},
			{LogLevel: config.LevelInfo, Endpoint: "https://info.example.com"},
		},
	}))
	deliverer := newCaptureDeliverer()

	r := NewRouter(store, deliverer, nil, zerolog.Nop(), nil)
	r.Route(testRecord(config.LevelWarn))

	// warn goes to every warn endpoint and only to warn endpoints.
	assert.Len(t, deliverer.deliveries["https://warn-a.example.com"], 1)
	assert.Len(t, deliverer.deliveries["https://warn-b.example.com"], 1)
	assert.Empty(t, deliverer.deliveries["https://error.example.com"])
	assert.Empty(t, deliverer.deliveries["https://info.example.com"])
}

func TestRoute_ConfigChangeAppliesToLaterRecords(t *testing.T) {
	store := config.NewStore()
	deliverer := newCaptureDeliverer()
	var out bytes.Buffer
	r := NewRouter(store, deliverer, &out, zerolog.Nop(), nil)

	r.Route(testRecord(config.LevelInfo)) // dev mode: local

	require.NoError(t, store.Set(config.Partial{
		DevMode:  boolPtr(false),
		LogMode:  strPtr(config.LogModeSingle),
		Endpoint: strPtr("https://logs.example.com/ingest"),
	}))

	r.Route(testRecord(config.LevelInfo)) // now remote

	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Equal(t, 1, deliverer.count())
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
