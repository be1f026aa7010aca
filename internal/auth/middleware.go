package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"echogate/internal/apperr"
	"echogate/internal/config"
)

const (
	apiPrefix    = "/v1/"
	bearerPrefix = "Bearer "
	headerName   = "Authorization"
)

// Observer is notified of every rejected request.
type Observer interface {
	AuthRejected(code string)
}

// Gate validates the shared bearer secret on protected paths.
type Gate struct {
	secret      []byte
	publicPaths map[string]struct{}
	observer    Observer
}

// NewGate builds a gate from the process configuration.
func NewGate(cfg *config.Config, observer Observer) *Gate {
	public := map[string]struct{}{
		"/health":       {},
		"/docs":         {},
		"/openapi.json": {},
		"/redoc":        {},
	}
	if cfg.BasicConfig.PublicModels {
		public["/v1/models"] = struct{}{}
	}
	return &Gate{
		secret:      []byte(cfg.BasicConfig.APIKey),
		publicPaths: public,
		observer:    observer,
	}
}

// Public reports whether path bypasses the credential check.
func (g *Gate) Public(path string) bool {
	if !strings.HasPrefix(path, apiPrefix) {
		return true
	}
	_, ok := g.publicPaths[path]
	return ok
}

// Check decides allow/deny for a request path and its Authorization header.
func (g *Gate) Check(path, header string) error {
	if g.Public(path) {
		return nil
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return apperr.MissingAPIKey()
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if subtle.ConstantTimeCompare([]byte(token), g.secret) != 1 {
		return apperr.InvalidAPIKey()
	}
	return nil
}

// Middleware rejects unauthorized requests before any handler runs.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := g.Check(c.Request.URL.Path, c.GetHeader(headerName))
		if err == nil {
			c.Next()
			return
		}
		appErr := apperr.As(err)
		if g.observer != nil {
			g.observer.AuthRejected(appErr.Code)
		}
		logrus.WithFields(logrus.Fields{
			"path": c.Request.URL.Path,
			"code": appErr.Code,
		}).Warn("rejected unauthenticated request")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"message": appErr.Message,
				"type":    "invalid_request_error",
				"code":    appErr.Code,
			},
		})
	}
}
