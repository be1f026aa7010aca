package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echogate/internal/apperr"
	"echogate/internal/config"
)

type countingObserver struct {
	codes []string
}

func (o *countingObserver) AuthRejected(code string) {
	o.codes = append(o.codes, code)
}

func newTestGate(publicModels bool) (*Gate, *countingObserver) {
	cfg := config.Default()
	cfg.BasicConfig.APIKey = "secret-key"
	cfg.BasicConfig.PublicModels = publicModels
	obs := &countingObserver{}
	return NewGate(cfg, obs), obs
}

func TestGateCheck(t *testing.T) {
	gate, _ := newTestGate(false)

	cases := []struct {
		name   string
		path   string
		header string
		code   string
	}{
		{name: "health is public", path: "/health"},
		{name: "docs are public", path: "/docs"},
		{name: "openapi is public", path: "/openapi.json"},
		{name: "outside api namespace", path: "/metrics"},
		{name: "valid token", path: "/v1/chat/completions", header: "Bearer secret-key"},
		{name: "valid token with trailing space", path: "/v1/logs", header: "Bearer secret-key  "},
		{name: "missing header", path: "/v1/chat/completions", code: apperr.CodeMissingAPIKey},
		{name: "wrong scheme", path: "/v1/logs", header: "Basic secret-key", code: apperr.CodeMissingAPIKey},
		{name: "lowercase scheme", path: "/v1/logs", header: "bearer secret-key", code: apperr.CodeMissingAPIKey},
		{name: "wrong token", path: "/v1/logs", header: "Bearer nope", code: apperr.CodeInvalidAPIKey},
		{name: "prefix of token", path: "/v1/logs", header: "Bearer secret", code: apperr.CodeInvalidAPIKey},
		{name: "empty token", path: "/v1/logs", header: "Bearer ", code: apperr.CodeInvalidAPIKey},
		{name: "models protected by default", path: "/v1/models", code: apperr.CodeMissingAPIKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := gate.Check(tc.path, tc.header)
			if tc.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindAuth))
			assert.Equal(t, tc.code, apperr.As(err).Code)
		})
	}
}

func TestGatePublicModels(t *testing.T) {
	gate, _ := newTestGate(true)
	assert.NoError(t, gate.Check("/v1/models", ""))
	assert.Error(t, gate.Check("/v1/logs", ""))
}

func TestMiddlewareShortCircuits(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gate, obs := newTestGate(false)

	calls := 0
	router := gin.New()
	router.Use(gate.Middleware())
	router.POST("/v1/chat/completions", func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	})

	for _, header := range []string{"", "Bearer wrong"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var body struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "invalid_request_error", body.Error.Type)
		assert.NotEmpty(t, body.Error.Message)
	}
	assert.Zero(t, calls)
	assert.Equal(t, []string{apperr.CodeMissingAPIKey, apperr.CodeInvalidAPIKey}, obs.codes)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)
}
