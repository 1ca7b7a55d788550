package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/deppfellow/osmcha-backend/internal/errs"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/deppfellow/osmcha-backend/internal/server"
	"github.com/labstack/echo/v4"
)

// AuthScheme is the expected Authorization header scheme:
//
//	Authorization: Token <key>
const AuthScheme = "Token"

const tokenCachePrefix = "auth:token:"

// UserStore resolves an API token hash into a user account. A lookup that
// matches no account returns (nil, nil).
type UserStore interface {
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.User, error)
}

// AuthMiddleware resolves opaque API tokens into user accounts. Resolved
// accounts are cached in Redis under the token hash so the users table is
// not hit on every request.
type AuthMiddleware struct {
	server *server.Server
	users  UserStore
}

// NewAuthMiddleware constructs an AuthMiddleware.
func NewAuthMiddleware(s *server.Server, users UserStore) *AuthMiddleware {
	return &AuthMiddleware{
		server: s,
		users:  users,
	}
}

// OptionalAuth authenticates the request when an Authorization header is
// present and otherwise lets it through anonymously. A header that is
// present but invalid still fails with 401.
func (auth *AuthMiddleware) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			return next(c)
		}

		user, err := auth.resolve(c, header)
		if err != nil {
			return err
		}

		c.Set(UserKey, user)
		return next(c)
	}
}

// RequireAuth enforces token authentication.
func (auth *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			return errs.NewUnauthorizedError("Authentication credentials were not provided", false)
		}

		user, err := auth.resolve(c, header)
		if err != nil {
			return err
		}

		c.Set(UserKey, user)
		return next(c)
	}
}

// RequireStaff enforces token authentication and a staff account.
func (auth *AuthMiddleware) RequireStaff(next echo.HandlerFunc) echo.HandlerFunc {
	return auth.RequireAuth(func(c echo.Context) error {
		if !IsStaff(c) {
			return errs.NewForbiddenError("You do not have permission to perform this action", false)
		}
		return next(c)
	})
}

// resolve validates the Authorization header and returns the account it
// belongs to, consulting the Redis cache before the users store.
func (auth *AuthMiddleware) resolve(c echo.Context, header string) (*models.User, error) {
	start := time.Now()

	scheme, token, found := strings.Cut(header, " ")
	if !found || scheme != AuthScheme || token == "" {
		return nil, errs.NewUnauthorizedError("Invalid token header", false)
	}

	tokenHash := models.HashToken(token)
	ctx := c.Request().Context()

	if user := auth.fromCache(ctx, tokenHash); user != nil {
		return user, nil
	}

	user, err := auth.users.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		auth.server.Logger.Warn().
			Str("function", "RequireAuth").
			Str("request_id", GetRequestID(c)).
			Dur("duration", time.Since(start)).
			Msg("rejected invalid API token")

		return nil, errs.NewUnauthorizedError("Invalid token", false)
	}

	auth.storeInCache(ctx, tokenHash, user)

	auth.server.Logger.Info().
		Str("function", "RequireAuth").
		Int64("user_id", user.ID).
		Str("request_id", GetRequestID(c)).
		Dur("duration", time.Since(start)).
		Msg("user authenticated successfully")

	return user, nil
}

func (auth *AuthMiddleware) fromCache(ctx context.Context, tokenHash string) *models.User {
	payload, err := auth.server.Redis.Get(ctx, tokenCachePrefix+tokenHash).Bytes()
	if err != nil {
		return nil
	}

	var user models.User
	if err := json.Unmarshal(payload, &user); err != nil {
		return nil
	}
	if !user.IsActive {
		return nil
	}
	return &user
}

func (auth *AuthMiddleware) storeInCache(ctx context.Context, tokenHash string, user *models.User) {
	payload, err := json.Marshal(user)
	if err != nil {
		return
	}

	ttl := time.Duration(auth.server.Config.Auth.TokenCacheTTL) * time.Second
	// Cache failures are invisible to the client; the next request just
	// hits the database again.
	if err := auth.server.Redis.Set(ctx, tokenCachePrefix+tokenHash, payload, ttl).Err(); err != nil {
		auth.server.Logger.Warn().Err(err).Msg("failed to cache auth token")
	}
}
