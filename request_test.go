package similarity

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssciwr/similarity-client-go/pkg/alerts"
	chhttp "github.com/ssciwr/similarity-client-go/pkg/commons/http"
	"github.com/ssciwr/similarity-client-go/pkg/logger"
)

type capturedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    string
}

// newCapturingServer answers every request with status and body. The returned func
// reports the last request received.
func newCapturingServer(t *testing.T, status int, body string) (*httptest.Server, func() capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var last capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		last = capturedRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Headers: r.Header.Clone(),
			Body:    string(b),
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, func() capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func newTestBaseClient(t *testing.T, baseURL string, opts ...ClientOption) *BaseAPIClient {
	t.Helper()
	bc, err := newBaseAPIClient(append([]ClientOption{WithBaseURL(baseURL)}, opts...)...)
	require.NoError(t, err)
	return bc
}

func TestGetQueryString(t *testing.T) {
	t.Run("empty query adds no question mark", func(t *testing.T) {
		srv, captured := newCapturingServer(t, http.StatusOK, `{"ids":["1","2"]}`)
		bc := newTestBaseClient(t, srv.URL+"/api")

		resp := bc.Get(context.Background(), "/collection/list", nil)
		require.True(t, resp.OK, resp.Msg)
		require.Equal(t, http.MethodGet, captured().Method)
		require.Equal(t, "/api/collection/list", captured().Path)
		require.Empty(t, captured().Query)
		require.Empty(t, captured().Body)
		require.JSONEq(t, `{"ids":["1","2"]}`, string(resp.Body))
		require.Equal(t, 0, bc.Alerts().Len())
	})

	t.Run("non-empty query is encoded", func(t *testing.T) {
		srv, captured := newCapturingServer(t, http.StatusOK, `{}`)
		bc := newTestBaseClient(t, srv.URL)

		resp := bc.Get(context.Background(), "/collection/list", url.Values{"q": {"a b"}, "limit": {"5"}})
		require.True(t, resp.OK, resp.Msg)
		require.Equal(t, "limit=5&q=a+b", captured().Query)
	})
}

func TestPostSendsAPIKeyAndJSON(t *testing.T) {
	srv, captured := newCapturingServer(t, http.StatusOK, `{"id":"7"}`)
	bc := newTestBaseClient(t, srv.URL, WithDefaultHeaders(map[string]string{"X-Extra": "1"}))

	resp := bc.Post(context.Background(), "/collection/create", "key-1", map[string]string{"name": "paintings"})
	require.True(t, resp.OK, resp.Msg)
	require.Equal(t, http.MethodPost, captured().Method)
	require.Equal(t, "key-1", captured().Headers.Get(APIKeyHeader))
	require.Equal(t, MimeJSON, captured().Headers.Get("Content-Type"))
	require.Equal(t, MimeJSON, captured().Headers.Get("Accept"))
	require.Equal(t, "1", captured().Headers.Get("X-Extra"))
	require.Equal(t, userAgent, captured().Headers.Get("User-Agent"))
	require.JSONEq(t, `{"name":"paintings"}`, captured().Body)
	require.NotEmpty(t, resp.RequestID)
}

func TestPostNilBodyIsEmptyObject(t *testing.T) {
	srv, captured := newCapturingServer(t, http.StatusOK, `{}`)
	bc := newTestBaseClient(t, srv.URL)

	resp := bc.Post(context.Background(), "/collection/3/delete", "", nil)
	require.True(t, resp.OK)
	require.Equal(t, "{}", captured().Body)
	_, present := captured().Headers[http.CanonicalHeaderKey(APIKeyHeader)]
	require.True(t, present, "API-Key header must be sent even when empty")
}

func TestPostFile(t *testing.T) {
	srv, captured := newCapturingServer(t, http.StatusOK, `{"message_type":"push","message":"uploaded"}`)
	bc := newTestBaseClient(t, srv.URL)

	resp := bc.PostFile(context.Background(), "/collection/3/updatecontent", "k", strings.NewReader("a,b\n1,2\n"), MimeCSV, url.Values{"mode": {"replace"}})
	require.True(t, resp.OK, resp.Msg)
	require.Equal(t, "a,b\n1,2\n", captured().Body)
	require.Equal(t, MimeCSV, captured().Headers.Get("Content-Type"))
	require.Equal(t, "k", captured().Headers.Get(APIKeyHeader))
	require.Equal(t, "mode=replace", captured().Query)

	got := bc.Alerts().Alerts()
	require.Len(t, got, 1)
	require.Equal(t, "uploaded", got[0].Message)
	require.Equal(t, alerts.Green, got[0].Color)
}

func TestEnvelopeAlerts(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantAlert bool
		message   string
		color     alerts.Color
	}{
		{name: "error adds a red alert", body: `{"message_type":"error","message":"bad key"}`, wantAlert: true, message: "bad key", color: alerts.Red},
		{name: "push adds a green alert", body: `{"message_type":"push","message":"saved"}`, wantAlert: true, message: "saved", color: alerts.Green},
		{name: "structured error message", body: `{"message_type":"error","message":{"name":["required"]}}`, wantAlert: true, message: `{"name":["required"]}`, color: alerts.Red},
		{name: "numeric push message", body: `{"message_type":"push","message":3}`, wantAlert: true, message: "3", color: alerts.Green},
		{name: "no message type", body: `{"message":"hello"}`},
		{name: "unknown message type", body: `{"message_type":"info","message":"hello"}`},
		{name: "array body", body: `[1,2,3]`},
		{name: "empty body", body: ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newCapturingServer(t, http.StatusOK, tt.body)
			bc := newTestBaseClient(t, srv.URL)

			resp := bc.Get(context.Background(), "/collection/list", nil)
			require.True(t, resp.OK, "a 2xx response never fails: %s", resp.Msg)
			require.NoError(t, resp.Err())
			got := bc.Alerts().Alerts()
			if !tt.wantAlert {
				require.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			require.Equal(t, tt.message, got[0].Message)
			require.Equal(t, tt.color, got[0].Color)
		})
	}
}

func TestErrorStatusKeepsBodyAndAlerts(t *testing.T) {
	srv, _ := newCapturingServer(t, http.StatusForbidden, `{"message_type":"error","message":"Invalid API key"}`)
	bc := newTestBaseClient(t, srv.URL)

	resp := bc.Post(context.Background(), "/collection/1/delete", "wrong", nil)
	require.False(t, resp.OK)
	require.Equal(t, http.StatusForbidden, resp.Status)
	require.Equal(t, "Invalid API key", resp.Msg)
	require.JSONEq(t, `{"message_type":"error","message":"Invalid API key"}`, string(resp.Body))

	var apiErr *chhttp.APIError
	require.ErrorAs(t, resp.Err(), &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	require.False(t, apiErr.Transport())

	got := bc.Alerts().Alerts()
	require.Len(t, got, 1)
	require.Equal(t, alerts.Red, got[0].Color)
}

func TestErrorStatusWithPlainBody(t *testing.T) {
	srv, _ := newCapturingServer(t, http.StatusInternalServerError, "boom\n")
	bc := newTestBaseClient(t, srv.URL)

	resp := bc.Get(context.Background(), "/collection/1/info", nil)
	require.False(t, resp.OK)
	require.Equal(t, http.StatusInternalServerError, resp.Status)
	require.Equal(t, "boom", resp.Msg)
	require.Equal(t, 0, bc.Alerts().Len())
}

func TestMalformedSuccessBody(t *testing.T) {
	srv, _ := newCapturingServer(t, http.StatusOK, `<html>not json</html>`)
	bc := newTestBaseClient(t, srv.URL)

	resp := bc.Get(context.Background(), "/collection/list", nil)
	require.False(t, resp.OK)
	require.Equal(t, http.StatusOK, resp.Status)
	require.True(t, strings.HasPrefix(resp.Msg, "error decoding response"), resp.Msg)
	require.Error(t, resp.Err())
}

func TestTransportFailureYieldsFailureValue(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	bc := newTestBaseClient(t, baseURL)
	ctx := context.Background()
	results := []*Response{
		bc.Get(ctx, "/collection/list", nil),
		bc.Post(ctx, "/collection/1/delete", "k", nil),
		bc.PostFile(ctx, "/collection/1/updatecontent", "k", strings.NewReader("x"), MimeCSV, nil),
	}
	for _, resp := range results {
		require.NotNil(t, resp)
		require.False(t, resp.OK)
		require.Equal(t, 0, resp.Status)
		require.NotEmpty(t, resp.Msg)
		var apiErr *chhttp.APIError
		require.ErrorAs(t, resp.Err(), &apiErr)
		require.True(t, apiErr.Transport())
	}
	got := bc.Alerts().Alerts()
	require.Len(t, got, 3)
	for _, a := range got {
		require.Equal(t, alerts.Red, a.Color)
	}
}

func TestCancelledContextAddsNoAlert(t *testing.T) {
	srv, _ := newCapturingServer(t, http.StatusOK, `{}`)
	bc := newTestBaseClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := bc.Get(ctx, "/collection/list", nil)
	require.False(t, resp.OK)
	require.Equal(t, 0, bc.Alerts().Len())
}

func TestSharedAlertStore(t *testing.T) {
	srv, _ := newCapturingServer(t, http.StatusOK, `{"message_type":"push","message":"ok"}`)
	store := alerts.NewStore()
	var seen atomic.Int32
	unsubscribe := store.Subscribe(func(a []alerts.Alert) { seen.Store(int32(len(a))) })
	defer unsubscribe()

	bc := newTestBaseClient(t, srv.URL, WithAlerts(store))
	require.Same(t, store, bc.Alerts())
	bc.Get(context.Background(), "/", nil)
	require.Equal(t, int32(1), seen.Load())
}

func TestRetryStrategyResendsBody(t *testing.T) {
	var calls atomic.Int32
	var lastBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		lastBody.Store(string(b))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"message_type":"push","message":"done"}`))
	}))
	defer srv.Close()

	strategy, err := chhttp.NewSimpleRetryStrategy(
		chhttp.WithMaxRetries(3),
		chhttp.WithFixedDelay(time.Millisecond),
		chhttp.WithRetryableStatusCodes(http.StatusServiceUnavailable),
	)
	require.NoError(t, err)
	bc := newTestBaseClient(t, srv.URL, WithRetryStrategy(strategy))

	resp := bc.Post(context.Background(), "/collection/1/finetune", "k", nil)
	require.True(t, resp.OK, resp.Msg)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, "{}", lastBody.Load())
}

func TestDebugDumpHidesAPIKey(t *testing.T) {
	srv, _ := newCapturingServer(t, http.StatusOK, `{}`)
	var buf bytes.Buffer
	bc := newTestBaseClient(t, srv.URL, WithLogger(logger.NewTextSlogLogger(&buf, slog.LevelDebug)))

	resp := bc.Post(context.Background(), "/verify", "supersecretkey123", nil)
	require.True(t, resp.OK)
	out := buf.String()
	assert.Contains(t, out, "HTTP Request")
	assert.Contains(t, out, "supe...y123")
	assert.NotContains(t, out, "supersecretkey123")
	assert.Contains(t, out, resp.RequestID)
}
