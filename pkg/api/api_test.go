package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fordlabs/retroquest-notifier/pkg/config"
	"github.com/fordlabs/retroquest-notifier/pkg/version"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, cfg config.Server) *Server {
	t.Helper()
	s, err := NewServer(zaptest.NewLogger(t), cfg, true)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNewServer_InvalidTrustedProxies(t *testing.T) {
	_, err := NewServer(zaptest.NewLogger(t), config.Server{TrustedProxies: []string{"not-a-cidr"}}, true)
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, config.Server{})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestVersionEndpoint(t *testing.T) {
	s := newTestServer(t, config.Server{})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/version", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.Equal(t, version.Platform, info.Platform)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, config.Server{})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "retroquest_notification_skipped_total")
}

func TestCORSOnlyForAllowedOrigins(t *testing.T) {
	s := newTestServer(t, config.Server{AllowedOrigins: []string{"http://localhost:4200"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:4200", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

type stoppableController struct{ stopped int }

func (c *stoppableController) BasePath() string            { return "things" }
func (c *stoppableController) Handlers() []gin.HandlerFunc { return nil }
func (c *stoppableController) Stop()                       { c.stopped++ }
func (c *stoppableController) Register(rg *gin.RouterGroup) error {
	rg.GET("", func(ctx *gin.Context) { ctx.String(http.StatusOK, "things") })
	return nil
}

func TestRegisterAllAndClose(t *testing.T) {
	s, err := NewServer(zaptest.NewLogger(t), config.Server{}, true)
	require.NoError(t, err)

	ctrl := &stoppableController{}
	require.NoError(t, s.RegisterAll([]APIController{ctrl}))

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/things", nil))
	assert.Equal(t, "things", w.Body.String())

	s.Close()
	s.Close()
	assert.Equal(t, 1, ctrl.stopped)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestListen_GracefulShutdown(t *testing.T) {
	addr := freeAddr(t)
	s, err := NewServer(zaptest.NewLogger(t), config.Server{ListenAddress: addr}, true)
	require.NoError(t, err)
	ctrl := &stoppableController{}
	require.NoError(t, s.RegisterAll([]APIController{ctrl}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Listen(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("Listen did not return after cancel")
	}
	assert.Equal(t, 1, ctrl.stopped)
}

func TestListen_AddressInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	s, err := NewServer(zaptest.NewLogger(t), config.Server{ListenAddress: l.Addr().String()}, true)
	require.NoError(t, err)

	err = s.Listen(context.Background())
	assert.Error(t, err)
}
