package sink

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/call-trace-service/internal/config"
	"github.com/helixir/call-trace-service/internal/correlation"
	"github.com/helixir/call-trace-service/internal/emit"
)

func testRecord() emit.Record {
	ctx := &correlation.Context{ProcessID: "p1", ParentID: "p0"}
	return emit.NewEnter(ctx, "ReportService", "Generate", config.LevelInfo, []any{"q4"}, false)
}

func TestDeliver_PostsJSONRecord(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{Timeout: time.Second}, zerolog.Nop(), nil)
	c.Deliver(srv.URL, testRecord())
	c.Flush()

	assert.Equal(t, "application/json", gotContentType)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "p1", decoded["processId"])
	assert.Equal(t, "p0", decoded["parentId"])
	assert.Equal(t, "Enter", decoded["action"])
}

func TestDeliver_TransportFailureDoesNotPropagate(t *testing.T) {
	c := NewClient(ClientConfig{Timeout: 200 * time.Millisecond}, zerolog.Nop(), nil)

	// Nothing listens here; the delivery must fail silently.
	c.Deliver("http://127.0.0.1:1/api/v1/records", testRecord())
	c.Flush()
}

func TestDeliver_ServerErrorDoesNotPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{Timeout: time.Second}, zerolog.Nop(), nil)
	c.Deliver(srv.URL, testRecord())
	c.Flush()
}

func TestDeliver_RateLimiterDropsOverBudget(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	// One token, no refill to speak of within the test window.
	c := NewClient(ClientConfig{
		Timeout:       time.Second,
		RatePerSecond: 0.001,
		Burst:         1,
	}, zerolog.Nop(), nil)

	for i := 0; i < 5; i++ {
		c.Deliver(srv.URL, testRecord())
	}
	c.Flush()

	assert.Equal(t, int64(1), hits.Load())
}
