package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/deppfellow/osmcha-backend/internal/config"
	"github.com/deppfellow/osmcha-backend/internal/errs"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/deppfellow/osmcha-backend/internal/server"
)

type fakeUserStore struct {
	users map[string]*models.User
	calls int
}

func (f *fakeUserStore) GetByTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	f.calls++
	return f.users[tokenHash], nil
}

func newTestServer(t *testing.T) *server.Server {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zerolog.Nop()
	return &server.Server{
		Config: &config.Config{
			Auth:   config.AuthConfig{TokenCacheTTL: 60},
			Review: config.ReviewConfig{ChecksPerMinute: 3},
		},
		Logger: &logger,
		Redis:  client,
	}
}

func newAuthContext(header string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func passthrough(c echo.Context) error {
	return nil
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	httpErr, ok := err.(*errs.HTTPError)
	if !ok {
		t.Fatalf("expected *errs.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Status != want {
		t.Fatalf("expected status %d, got %d", want, httpErr.Status)
	}
}

func TestOptionalAuthWithoutHeader(t *testing.T) {
	auth := NewAuthMiddleware(newTestServer(t), &fakeUserStore{})
	c := newAuthContext("")

	if err := auth.OptionalAuth(passthrough)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if GetUser(c) != nil {
		t.Fatal("expected anonymous request")
	}
}

func TestOptionalAuthRejectsInvalidHeader(t *testing.T) {
	auth := NewAuthMiddleware(newTestServer(t), &fakeUserStore{users: map[string]*models.User{}})

	err := auth.OptionalAuth(passthrough)(newAuthContext("Token deadbeef"))
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestRequireAuthWithoutHeader(t *testing.T) {
	auth := NewAuthMiddleware(newTestServer(t), &fakeUserStore{})

	err := auth.RequireAuth(passthrough)(newAuthContext(""))
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestRequireAuthRejectsWrongScheme(t *testing.T) {
	auth := NewAuthMiddleware(newTestServer(t), &fakeUserStore{})

	err := auth.RequireAuth(passthrough)(newAuthContext("Bearer abc"))
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestRequireAuthResolvesAndCachesUser(t *testing.T) {
	token := "f00d"
	store := &fakeUserStore{users: map[string]*models.User{
		models.HashToken(token): {ID: 7, Username: "reviewer", IsActive: true},
	}}
	auth := NewAuthMiddleware(newTestServer(t), store)

	c := newAuthContext("Token " + token)
	if err := auth.RequireAuth(passthrough)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	user := GetUser(c)
	if user == nil || user.ID != 7 {
		t.Fatalf("expected user 7 in context, got %+v", user)
	}

	// Second request is served from the Redis cache.
	if err := auth.RequireAuth(passthrough)(newAuthContext("Token " + token)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected 1 store lookup, got %d", store.calls)
	}
}

func TestRequireAuthRejectsInactiveUser(t *testing.T) {
	token := "f00d"
	store := &fakeUserStore{users: map[string]*models.User{
		models.HashToken(token): {ID: 7, Username: "reviewer", IsActive: false},
	}}
	auth := NewAuthMiddleware(newTestServer(t), store)

	err := auth.RequireAuth(passthrough)(newAuthContext("Token " + token))
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestRequireStaff(t *testing.T) {
	staffToken := "f00d"
	reviewerToken := "beef"
	store := &fakeUserStore{users: map[string]*models.User{
		models.HashToken(staffToken):    {ID: 1, IsStaff: true, IsActive: true},
		models.HashToken(reviewerToken): {ID: 2, IsActive: true},
	}}
	auth := NewAuthMiddleware(newTestServer(t), store)

	if err := auth.RequireStaff(passthrough)(newAuthContext("Token " + staffToken)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := auth.RequireStaff(passthrough)(newAuthContext("Token " + reviewerToken))
	assertStatus(t, err, http.StatusForbidden)
}
