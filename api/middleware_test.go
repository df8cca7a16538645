package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseGuard_DropsSecondResponse(t *testing.T) {
	// GIVEN: A handler that answers twice
	var logs bytes.Buffer
	log := zerolog.New(&logs)
	h := requestLogger(&log)(responseGuard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, Response{Success: true, Message: "first"})
		writeError(w, http.StatusInternalServerError, "second", nil)
	})))

	// WHEN: Serving a request
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/x", nil))

	// THEN: Only the first response reaches the client; the second is logged
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), "first")
	assert.NotContains(t, rr.Body.String(), "second")
	assert.Contains(t, logs.String(), "dropping second response")
	assert.Contains(t, logs.String(), `"dropped_status":500`)
}

func TestResponseGuard_ImplicitOK(t *testing.T) {
	h := responseGuard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello", rr.Body.String())
}

func TestAccessLog_CarriesRequestID(t *testing.T) {
	var logs bytes.Buffer
	log := zerolog.New(&logs)
	h := NewHandler(Deps{Backend: "memory"})
	router := NewRouter(h, RouterOptions{Logger: &log})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
	assert.Contains(t, logs.String(), `"request_id":"req-123"`)
	assert.Contains(t, logs.String(), `"path":"/health"`)
	assert.Contains(t, logs.String(), "request done")
}

func TestRecoverer(t *testing.T) {
	r := NewRouter(NewHandler(Deps{}), RouterOptions{})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
