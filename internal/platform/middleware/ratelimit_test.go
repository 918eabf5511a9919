package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"foodtrace/pkg/requestcontext"
)

func TestSlidingWindowEnforcesTheLimit(t *testing.T) {
	sw := NewSlidingWindow(3, time.Minute)
	now := time.Now()

	for i := 0; i < 3; i++ {
		assert.True(t, sw.Allow("caller", now).Allowed)
	}
	denied := sw.Allow("caller", now)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 3, denied.Limit)
}

func TestSlidingWindowKeysAreIndependent(t *testing.T) {
	sw := NewSlidingWindow(1, time.Minute)
	now := time.Now()

	assert.True(t, sw.Allow("a", now).Allowed)
	assert.False(t, sw.Allow("a", now).Allowed)
	assert.True(t, sw.Allow("b", now).Allowed)
}

func TestSlidingWindowSlidesRatherThanResets(t *testing.T) {
	sw := NewSlidingWindow(2, time.Minute)
	start := time.Now()

	assert.True(t, sw.Allow("caller", start).Allowed)
	assert.True(t, sw.Allow("caller", start.Add(30*time.Second)).Allowed)

	// The first admission has left the window; the second has not.
	later := start.Add(61 * time.Second)
	assert.True(t, sw.Allow("caller", later).Allowed)
	assert.False(t, sw.Allow("caller", later).Allowed)
}

func TestRateLimitMiddlewareAnswers429(t *testing.T) {
	handler := RateLimit(NewSlidingWindow(1, time.Minute))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	send := func(caller string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		req = req.WithContext(requestcontext.WithCaller(req.Context(), caller))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	first := send("caller-1")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := send("caller-1")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	other := send("caller-2")
	assert.Equal(t, http.StatusOK, other.Code)
}
