package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/osmcha-backend/internal/models"
)

func newThrottleContext(user *models.User) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPut, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	if user != nil {
		c.Set(UserKey, user)
	}
	return c
}

func TestLimitChecksAllowsUnderLimit(t *testing.T) {
	throttle := NewThrottleMiddleware(newTestServer(t))
	user := &models.User{ID: 5}

	for i := 0; i < 3; i++ {
		if err := throttle.LimitChecks()(passthrough)(newThrottleContext(user)); err != nil {
			t.Fatalf("check %d: unexpected error: %v", i+1, err)
		}
	}
}

func TestLimitChecksRejectsOverLimit(t *testing.T) {
	throttle := NewThrottleMiddleware(newTestServer(t))
	user := &models.User{ID: 5}

	for i := 0; i < 3; i++ {
		if err := throttle.LimitChecks()(passthrough)(newThrottleContext(user)); err != nil {
			t.Fatalf("check %d: unexpected error: %v", i+1, err)
		}
	}

	err := throttle.LimitChecks()(passthrough)(newThrottleContext(user))
	assertStatus(t, err, http.StatusTooManyRequests)
}

func TestLimitChecksCountsRejectedPasses(t *testing.T) {
	throttle := NewThrottleMiddleware(newTestServer(t))
	user := &models.User{ID: 5}

	failing := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden)
	}

	// Rejected downstream requests still consume budget.
	for i := 0; i < 3; i++ {
		_ = throttle.LimitChecks()(failing)(newThrottleContext(user))
	}

	err := throttle.LimitChecks()(passthrough)(newThrottleContext(user))
	assertStatus(t, err, http.StatusTooManyRequests)
}

func TestLimitChecksExemptsStaff(t *testing.T) {
	throttle := NewThrottleMiddleware(newTestServer(t))
	staff := &models.User{ID: 1, IsStaff: true}

	for i := 0; i < 10; i++ {
		if err := throttle.LimitChecks()(passthrough)(newThrottleContext(staff)); err != nil {
			t.Fatalf("check %d: unexpected error: %v", i+1, err)
		}
	}
}

func TestLimitChecksIsolatesUsers(t *testing.T) {
	throttle := NewThrottleMiddleware(newTestServer(t))

	first := &models.User{ID: 5}
	for i := 0; i < 3; i++ {
		if err := throttle.LimitChecks()(passthrough)(newThrottleContext(first)); err != nil {
			t.Fatalf("check %d: unexpected error: %v", i+1, err)
		}
	}

	second := &models.User{ID: 6}
	if err := throttle.LimitChecks()(passthrough)(newThrottleContext(second)); err != nil {
		t.Fatalf("unexpected error for second user: %v", err)
	}
}

func TestLimitChecksFailsOpenWhenRedisDown(t *testing.T) {
	s := newTestServer(t)
	s.Redis.Close()

	throttle := NewThrottleMiddleware(s)
	user := &models.User{ID: 5}

	if err := throttle.LimitChecks()(passthrough)(newThrottleContext(user)); err != nil {
		t.Fatalf("expected fail-open, got: %v", err)
	}
}

func TestLimitChecksDisabledWithoutLimit(t *testing.T) {
	s := newTestServer(t)
	s.Config.Review.ChecksPerMinute = 0

	throttle := NewThrottleMiddleware(s)
	user := &models.User{ID: 5}

	for i := 0; i < 10; i++ {
		if err := throttle.LimitChecks()(passthrough)(newThrottleContext(user)); err != nil {
			t.Fatalf("check %d: unexpected error: %v", i+1, err)
		}
	}
}
