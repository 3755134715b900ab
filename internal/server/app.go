// Package server initializes and runs the account service: it opens the
// account store, starts the mail dispatcher, serves the HTTP API and the
// gRPC health endpoint, and shuts everything down on a signal.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophaccount/internal/logging"
	"github.com/dmitrijs2005/gophaccount/internal/server/config"
	"github.com/dmitrijs2005/gophaccount/internal/server/httpapi"
	"github.com/dmitrijs2005/gophaccount/internal/server/metrics"
	"github.com/dmitrijs2005/gophaccount/internal/server/notify"
	"github.com/dmitrijs2005/gophaccount/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophaccount/internal/server/services"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"

	gs "github.com/dmitrijs2005/gophaccount/internal/server/grpc"
)

const drainTimeout = 30 * time.Second

// newDispatcher is a seam for tests.
var newDispatcher = notify.NewDispatcher

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	dispatcher *notify.Dispatcher
	httpServer *httpapi.Server
	grpcServer *gs.HealthServer
	closers    []func() error
}

// NewApp validates c and builds every component. Logs go to out.
func NewApp(ctx context.Context, c *config.Config, out io.Writer) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(out, c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, err
	}
	accessLog, err := accessLogger(logger, out, c.LogLevel)
	if err != nil {
		return nil, err
	}

	app := &App{config: c, logger: logger}

	db, rm, err := repomanager.Open(ctx, c.StoreDriver, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	notifier, err := newNotifier(ctx, c, logger)
	if err != nil {
		app.close()
		return nil, err
	}

	m := metrics.New()
	app.dispatcher = newDispatcher(notifier, logger.With("module", "notify"),
		c.NotifyWorkers, c.NotifyQueueSize, c.NotifyTimeout,
		notify.WithObserver(m.ObserveNotification))
	app.closers = append(app.closers, app.drainMail)

	svc := services.NewAccountService(db, rm, c, app.dispatcher, logger.With("module", "accounts"),
		services.WithMetrics(m))

	store, closeStore, err := httpapi.NewLimiterStore(ctx, httpapi.RedisOptions{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	if err != nil {
		app.close()
		return nil, err
	}
	app.closers = append(app.closers, closeStore)

	app.httpServer, err = httpapi.NewServer(httpapi.Options{
		Address:        c.EndpointAddrHTTP,
		RoutePrefix:    c.RoutePrefix,
		LimiterStore:   store,
		Rate:           limiter.Rate{Period: c.RateLimitWindow, Limit: int64(c.RateLimit)},
		Metrics:        m,
		AccessLog:      accessLog,
		TrustedProxies: c.TrustedProxies,
	}, svc, db, logger)
	if err != nil {
		app.close()
		return nil, err
	}

	app.grpcServer = gs.NewHealthServer(c.EndpointAddrGRPC, logger, db, c.HealthCheckInterval)

	return app, nil
}

// newNotifier picks the mail transport named by MailDriver.
func newNotifier(ctx context.Context, c *config.Config, logger logging.Logger) (notify.Notifier, error) {
	switch c.MailDriver {
	case config.MailDriverSMTP:
		return notify.NewSMTPNotifier(c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPassword, c.MailFrom)
	case config.MailDriverSES:
		return notify.NewSESNotifier(ctx, c.SESRegion, c.SESAccessKeyID, c.SESSecretAccessKey, c.MailFrom)
	default:
		return notify.NewLogNotifier(logger.With("module", "mail")), nil
	}
}

// accessLogger reuses the zap backend when there is one; with slog a
// separate zap logger writes gin access logs to the same output.
func accessLogger(l logging.Logger, out io.Writer, level string) (*zap.Logger, error) {
	if zl, ok := l.(*logging.ZapLogger); ok {
		return zl.Zap(), nil
	}
	zl, err := logging.New(out, logging.FormatZap, level)
	if err != nil {
		return nil, err
	}
	return zl.(*logging.ZapLogger).Zap(), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer.Run(ctx); err != nil {
		app.logger.Error(ctx, "HTTP server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpcServer.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
		cancelFunc()
	}
}

// Run serves until ctx is cancelled, a signal arrives or a server fails.
// Queued mail is drained before the store is closed.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "store", app.config.StoreDriver, "mail", app.config.MailDriver)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close()
	app.logger.Info(context.Background(), "App stopped")
}

// drainMail stops the dispatcher, waiting up to drainTimeout for queued mail.
func (app *App) drainMail() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := app.dispatcher.Close(ctx); err != nil {
		return fmt.Errorf("mail queue not drained: %w", err)
	}
	return nil
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
}
