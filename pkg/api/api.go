package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fordlabs/retroquest-notifier/pkg/config"
	"github.com/fordlabs/retroquest-notifier/pkg/metrics"
	"github.com/fordlabs/retroquest-notifier/pkg/system"
	"github.com/fordlabs/retroquest-notifier/pkg/version"
)

// ShutdownTimeout bounds how long Listen waits for in-flight requests.
const ShutdownTimeout = 10 * time.Second

// APIController is a group of routes mounted below /api/<BasePath>.
type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	// Handlers are middlewares applied to the whole group.
	Handlers() []gin.HandlerFunc
}

// Server owns the Gin engine and the http.Server serving it.
type Server struct {
	gin     *gin.Engine
	config  config.Server
	log     *zap.SugaredLogger
	closers []func()
}

// NewServer builds the engine with request logging, panic recovery and the
// unversioned routes. Debug mode enables CORS for cfg.AllowedOrigins.
func NewServer(log *zap.Logger, cfg config.Server, debug bool) (*Server, error) {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
		system.RequestLogger(log.Sugar()),
	)
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trustedProxies: %w", err)
	}

	if debug && len(cfg.AllowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", system.RequestIDHeader},
			MaxAge:       12 * time.Hour,
		}))
	}

	s := &Server{
		gin:    engine,
		config: cfg,
		log:    log.Sugar().Named("api"),
	}

	engine.GET("/healthz", s.getHealthz)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))
	engine.GET("/api/version", s.getVersion)

	return s, nil
}

// RegisterAll mounts every controller under /api.
func (s *Server) RegisterAll(controllers []APIController) error {
	r := s.gin.Group("api")
	for _, c := range controllers {
		if err := c.Register(r.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return fmt.Errorf("register %s: %w", c.BasePath(), err)
		}
		if stopper, ok := c.(interface{ Stop() }); ok {
			s.closers = append(s.closers, stopper.Stop)
		}
	}
	return nil
}

// Handler exposes the engine, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Listen serves until ctx is cancelled, then shuts down gracefully and
// releases controller resources. It returns nil after a clean shutdown.
func (s *Server) Listen(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}
	defer s.Close()

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
			s.log.Infow("Listening (TLS)", "address", s.config.ListenAddress)
			err = srv.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			s.log.Infow("Listening", "address", s.config.ListenAddress)
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// Close stops background work owned by registered controllers.
func (s *Server) Close() {
	for _, c := range s.closers {
		c()
	}
	s.closers = nil
}

func (s *Server) getHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetBuildInfo())
}
