package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echogate/internal/config"
	"echogate/internal/models"
)

func fakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/logs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []models.ChatLog{
				{ID: 2, Model: "echo-x", UserMessage: "second\nline", AssistantMessage: "second", CreatedAt: time.Unix(0, 0).UTC()},
				{ID: 1, Model: "echo-x", UserMessage: "first", AssistantMessage: "first", CreatedAt: time.Unix(0, 0).UTC()},
			},
		})
	})
	mux.HandleFunc("/v1/logs/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/logs/1" {
			_, _ = w.Write([]byte(`{"status":"deleted","id":1}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"Log not found","type":"invalid_request_error","code":"not_found"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runLogs(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cfg := config.Default()
	cfg.BasicConfig.APIKey = "k"
	cmd := logsCommand(&rootOptions{cfg: cfg})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--server", server))
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

func TestLogsList(t *testing.T) {
	srv := fakeGateway(t)
	out, err := runLogs(t, srv.URL, "list", "--limit", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ASSISTANT")
	assert.Contains(t, lines[1], "second line")
	assert.True(t, strings.HasPrefix(lines[2], "1 "))
}

func TestLogsDelete(t *testing.T) {
	srv := fakeGateway(t)
	out, err := runLogs(t, srv.URL, "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1")

	_, err = runLogs(t, srv.URL, "delete", "999999")
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "not_found", apiErr.Code)

	_, err = runLogs(t, srv.URL, "delete", "abc")
	assert.Error(t, err)
}

func TestServerURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8000", serverURL(":8000"))
	assert.Equal(t, "http://0.0.0.0:9000", serverURL("0.0.0.0:9000"))
	assert.Equal(t, "https://gw.example.com", serverURL("https://gw.example.com/"))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview("a\n  b"))
	long := strings.Repeat("x", 50)
	assert.Equal(t, 40, len([]rune(preview(long))))
}
