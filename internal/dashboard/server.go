// Package dashboard serves the read-only admin panel: a static page and the
// JSON API it calls.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/internal/metrics"
	"github.com/xaenox/wheel-bot/internal/models"
	"github.com/xaenox/wheel-bot/internal/storage"
)

//go:embed static
var staticFiles embed.FS

// Store is what the dashboard reads.
type Store interface {
	storage.StatsStorage
	ListUserWheels(ctx context.Context, userID int64) ([]*models.Wheel, error)
}

type Server struct {
	store   Store
	origins []string
	now     func() time.Time
	logger  *zap.Logger
}

// NewServer creates the dashboard. Without origins only the dashboard's own
// localhost origin on port is allowed cross-origin.
func NewServer(store Store, port int, origins []string, logger *zap.Logger) *Server {
	if len(origins) == 0 {
		origins = []string{
			"http://localhost:" + strconv.Itoa(port),
			"http://127.0.0.1:" + strconv.Itoa(port),
		}
	}
	return &Server{
		store:   store,
		origins: origins,
		now:     time.Now,
		logger:  logger,
	}
}

func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	return s
}

// Router builds the gin engine with every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog(), recordMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins: s.origins,
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	r.GET("/", func(c *gin.Context) {
		c.FileFromFS("/", http.FS(assets))
	})
	r.StaticFS("/static", http.FS(assets))

	r.GET("/healthcheck", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/users", s.listUsers)
		api.GET("/users/:id/wheels", s.userWheels)
		api.GET("/statistics", s.statistics)
		api.GET("/statistics/new-users", s.newUsers)
		api.GET("/statistics/users-with-wheels", s.usersWithWheels)
		api.GET("/statistics/inactive-users", s.inactiveUsers)
	}
	return r
}

func recordMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		metrics.RecordDashboardRequest(route, strconv.Itoa(c.Writer.Status()))
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Dashboard request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Dashboard listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
