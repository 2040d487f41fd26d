package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zhangleigang/knowledge-api/internal/common"
	"github.com/zhangleigang/knowledge-api/internal/logging"
	"github.com/zhangleigang/knowledge-api/internal/server/auth"
	"github.com/zhangleigang/knowledge-api/internal/server/models"
)

const (
	identityKey     = "identity"
	requestIDHeader = "X-Request-ID"
)

// Authenticator resolves a bearer token to a live user's identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Identity, error)
}

// IdentityFrom returns the identity attached by RequireAuth or OptionalAuth.
func IdentityFrom(c *gin.Context) (*models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*models.Identity)
	return id, ok && id != nil
}

func bearerToken(c *gin.Context) (string, bool) {
	return auth.ExtractFromHeader(c.GetHeader(common.AuthorizationHeaderName))
}

// RequireAuth rejects requests without a valid token for an existing user.
func RequireAuth(a Authenticator, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			authAbort(c, http.StatusUnauthorized, "no token provided")
			return
		}

		id, err := a.Authenticate(c.Request.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, common.ErrInvalidToken):
			authAbort(c, http.StatusUnauthorized, "token invalid or expired")
			return
		case errors.Is(err, common.ErrUnknownUser):
			authAbort(c, http.StatusUnauthorized, "user not found")
			return
		default:
			logger.Error(c.Request.Context(), "authentication failed", "error", err)
			authAbort(c, http.StatusInternalServerError, "authentication failed")
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// OptionalAuth attaches the caller's identity when the token checks out and
// lets every request through regardless.
func OptionalAuth(a Authenticator, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := tryAuthenticate(c, a, logger); id != nil {
			c.Set(identityKey, id)
		}
		c.Next()
	}
}

func tryAuthenticate(c *gin.Context, a Authenticator, logger logging.Logger) (id *models.Identity) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(c.Request.Context(), "optional auth panicked", "panic", r)
			id = nil
		}
	}()

	token, ok := bearerToken(c)
	if !ok {
		return nil
	}

	id, err := a.Authenticate(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, common.ErrInvalidToken) && !errors.Is(err, common.ErrUnknownUser) {
			logger.Warn(c.Request.Context(), "optional auth failed", "error", err)
		}
		return nil
	}
	return id
}

// requestLogger tags each request with an id and logs its outcome.
func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)

		c.Next()

		args := []any{
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		}
		if id, ok := IdentityFrom(c); ok {
			args = append(args, "user_id", id.UserID)
		}
		logger.Info(c.Request.Context(), "request", args...)
	}
}

// recovery turns a panic into the generic 500 envelope.
func recovery(logger logging.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, err any) {
		logger.Error(c.Request.Context(), "panic recovered", "panic", err, "path", c.Request.URL.Path)
		dataFail(c, http.StatusInternalServerError, "internal server error")
	})
}
