package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type loggerFunc func(string, ...any)

func (f loggerFunc) Info(msg string, v ...any)  { f(msg, v...) }
func (f loggerFunc) Error(msg string, v ...any) { f(msg, v...) }

func TestLoggerMiddleware(t *testing.T) {
	called := 0
	var msg string
	var args []any

	logger := loggerFunc(func(m string, v ...any) {
		called++
		msg = m
		args = v
	})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, err := w.Write([]byte("hi"))
		require.NoError(t, err, "should write response")
	})

	middleware := LoggerMiddleware(logger)
	srv := httptest.NewServer(middleware(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/test")
	require.NoError(t, err, "should make request to test server")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "should read response body")
	defer resp.Body.Close() // nolint:errcheck

	require.Equalf(t, http.StatusTeapot, resp.StatusCode, "should return status Teapot. Resp: %s", string(body))
	require.Equal(t, "hi", string(body), "should return 'hi' in response")

	requestID := resp.Header.Get(RequestIDHeader)
	_, err = uuid.Parse(requestID)
	require.NoError(t, err, "generated request id should be uuid")

	require.Equal(t, 1, called, "logger should be called once")
	require.Equal(t, "got HTTP request", msg, "logger should log 'got HTTP request'")
	require.Len(t, args, 12, "logger should log 12 fields")
	require.Equal(t, "request_id", args[0])
	require.Equal(t, requestID, args[1])
	require.Equal(t, "method", args[2])
	require.Equal(t, "GET", args[3])
	require.Equal(t, "uri", args[4])
	require.Equal(t, "/test", args[5])
	require.Equal(t, "duration", args[6])
	require.NotEmpty(t, args[7], "duration should not be empty")
	require.Equal(t, "status", args[8])
	require.Equal(t, http.StatusTeapot, args[9])
	require.Equal(t, "size", args[10])
	require.Equal(t, 2, args[11], "size should be 2 (length of 'hi')")
}

func TestLoggerMiddleware_KeepsRequestID(t *testing.T) {
	h := LoggerMiddleware(loggerFunc(func(string, ...any) {}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, id)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, id, rec.Header().Get(RequestIDHeader), "valid request id should be kept")

	req.Header.Set(RequestIDHeader, "not-uuid")
	rec = httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.NotEqual(t, "not-uuid", rec.Header().Get(RequestIDHeader), "invalid request id should be replaced")
}

func TestRecoverer(t *testing.T) {
	var msg string
	logger := loggerFunc(func(m string, _ ...any) { msg = m })

	h := Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "handler panicked", msg)
}
