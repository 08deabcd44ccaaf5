package sink

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(ServerConfig{Address: "127.0.0.1:0"}, zerolog.Nop())
}

func postRecord(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func validRecordBody() string {
	return `{
		"processId": "0f8fad5b-d9cb-469f-a165-70867728950e",
		"parentId": "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		"logLevel": "info",
		"className": "ReportService",
		"methodName": "Generate",
		"action": "Enter",
		"timestamp": "2026-08-30T10:15:00.000Z",
		"message": "2026-08-30T10:15:00.000Z [info: 7c9e6679-7425-40de-944b-e07fc1f90ae7 > 0f8fad5b-d9cb-469f-a165-70867728950e]: Enter ReportService.Generate"
	}`
}

func TestIngestRecord_Accepted(t *testing.T) {
	s := newTestServer(t)

	rec := postRecord(t, s.Handler(), validRecordBody())

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "accepted")
}

func TestIngestRecord_RootRecordWithoutParentAccepted(t *testing.T) {
	s := newTestServer(t)
	body := `{
		"processId": "0f8fad5b-d9cb-469f-a165-70867728950e",
		"logLevel": "warn",
		"className": "Billing",
		"methodName": "Charge",
		"action": "Error",
		"timestamp": "2026-08-30T10:15:00.000Z",
		"message": "boom",
		"error": "card declined"
	}`

	rec := postRecord(t, s.Handler(), body)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestIngestRecord_MalformedJSON(t *testing.T) {
	s := newTestServer(t)

	rec := postRecord(t, s.Handler(), `{"processId": `)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestRecord_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
	}{
		{
			name:    "non-uuid process id",
			replace: [2]string{"0f8fad5b-d9cb-469f-a165-70867728950e", "not-a-uuid"},
		},
		{
			name:    "unknown log level",
			replace: [2]string{`"logLevel": "info"`, `"logLevel": "verbose"`},
		},
		{
			name:    "unknown action",
			replace: [2]string{`"action": "Enter"`, `"action": "Observe"`},
		},
		{
			name:    "missing class name",
			replace: [2]string{`"className": "ReportService",`, ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			body := strings.Replace(validRecordBody(), tt.replace[0], tt.replace[1], 1)

			rec := postRecord(t, s.Handler(), body)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestShutdown_BoundedByConfiguredTimeout(t *testing.T) {
	s := NewServer(ServerConfig{
		Address:         "127.0.0.1:0",
		ShutdownTimeout: 100 * time.Millisecond,
	}, zerolog.Nop())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()
	require.Eventually(t, func() bool { return s.Addr() != "" },
		2*time.Second, 10*time.Millisecond)

	// Hold a request open so the connection stays active through
	// shutdown: the declared body is never sent.
	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("POST /api/v1/records HTTP/1.1\r\nHost: sink\r\nContent-Length: 64\r\n\r\n"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	err = s.Shutdown(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	conn.Close()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerOverNetwork(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/records", "application/json",
		strings.NewReader(validRecordBody()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}
