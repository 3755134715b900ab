// Package httpapi exposes the account lifecycle over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophaccount/internal/logging"
	"github.com/dmitrijs2005/gophaccount/internal/server/metrics"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures a Server. TrustedProxies lists the proxies allowed to
// set the client address through forwarding headers; when empty the peer
// address is used as is.
type Options struct {
	Address        string
	RoutePrefix    string
	LimiterStore   limiter.Store
	Rate           limiter.Rate
	Metrics        *metrics.Metrics
	AccessLog      *zap.Logger
	TrustedProxies []string
}

type Server struct {
	address  string
	router   *gin.Engine
	accounts AccountService
	store    Pinger
	metrics  *metrics.Metrics
	logger   logging.Logger
}

func NewServer(opts Options, accounts AccountService, store Pinger, logger logging.Logger) (*Server, error) {
	if err := registerValidators(); err != nil {
		return nil, err
	}
	if opts.AccessLog == nil {
		opts.AccessLog = zap.NewNop()
	}

	s := &Server{
		address:  opts.Address,
		accounts: accounts,
		store:    store,
		metrics:  opts.Metrics,
		logger:   logger.With("module", "http_server"),
	}

	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(ginzap.Ginzap(opts.AccessLog, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(opts.AccessLog, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))
	if s.metrics != nil {
		router.Use(s.observeRequests)
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	router.GET("/healthz", s.healthz)

	group := router.Group(opts.RoutePrefix)
	if opts.LimiterStore != nil {
		group.POST("/register", rateLimit(opts.LimiterStore, opts.Rate, "register", s.logger), s.register)
		group.POST("/login", rateLimit(opts.LimiterStore, opts.Rate, "login", s.logger), s.login)
	} else {
		group.POST("/register", s.register)
		group.POST("/login", s.login)
	}
	group.GET("/verify/:token", s.verify)

	s.router = router
	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) observeRequests(c *gin.Context) {
	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	s.metrics.RequestDuration.
		WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).
		Observe(time.Since(start).Seconds())
}
