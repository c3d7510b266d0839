package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winchesHe/devproxy/pkg/hmrproxy"
)

func setupTestServer(t *testing.T, staticDir string) *DevServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "api "+r.URL.Path)
	}))
	t.Cleanup(api.Close)

	dir := t.TempDir()
	content := "devServer:\n  proxy:\n    /api:\n      target: " + api.URL + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "proxy.config.yaml"), []byte(content), 0o644))

	srv, err := NewDevServer(&Config{
		Addr:          "127.0.0.1:0",
		StaticDir:     staticDir,
		EnableMetrics: true,
		Proxy:         hmrproxy.Options{Dir: dir},
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.proxy.Close() })
	return srv
}

func serve(s *DevServer, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	server := setupTestServer(t, "")
	w := serve(server, http.MethodGet, "/health")

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestAdminEndpoints(t *testing.T) {
	server := setupTestServer(t, "")

	t.Run("routes", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/__devproxy/routes")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Code int `json:"code"`
			Data struct {
				State  string `json:"state"`
				Routes []struct {
					Context string `json:"context"`
				} `json:"routes"`
				Span struct {
					Start int `json:"start"`
					End   int `json:"end"`
				} `json:"span"`
			} `json:"data"`
		}
		require.NoError(t, jsonHandler.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "idle", resp.Data.State)
		require.Len(t, resp.Data.Routes, 1)
		assert.Equal(t, "/api", resp.Data.Routes[0].Context)
		assert.Equal(t, 1, resp.Data.Span.End-resp.Data.Span.Start)
	})

	t.Run("version", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/__devproxy/version")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "go_version")
	})

	t.Run("metrics", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/metrics")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRouting(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(static, "app.js"), []byte("console.log(1)"), 0o644))

	server := setupTestServer(t, static)

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		body           string
	}{
		{
			name:           "Proxied",
			method:         http.MethodGet,
			path:           "/api/users",
			expectedStatus: http.StatusOK,
			body:           "api /api/users",
		},
		{
			name:           "Static file",
			method:         http.MethodGet,
			path:           "/app.js",
			expectedStatus: http.StatusOK,
			body:           "console.log(1)",
		},
		{
			name:           "History fallback",
			method:         http.MethodGet,
			path:           "/users/42",
			expectedStatus: http.StatusOK,
			body:           "<html>app</html>",
		},
		{
			name:           "Unmatched write",
			method:         http.MethodPost,
			path:           "/users/42",
			expectedStatus: http.StatusNotFound,
			body:           "no proxy rule or static file matches",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(server, tt.method, tt.path)
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestNoStaticDir(t *testing.T) {
	server := setupTestServer(t, "")
	w := serve(server, http.MethodGet, "/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestTrailingSlashReachesProxy(t *testing.T) {
	server := setupTestServer(t, "")

	w := serve(server, http.MethodGet, "/health/")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("Location"))

	w = serve(server, http.MethodGet, "/api/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "api /api/", w.Body.String())
}
