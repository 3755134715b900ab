package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophaccount/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const limiterPrefix = "gophaccount:limiter"

// RedisOptions selects a shared limiter store. An empty Addr keeps counters
// in process memory.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewLimiterStore returns the counter store for the rate limiter and a func
// releasing its resources.
func NewLimiterStore(ctx context.Context, opts RedisOptions) (limiter.Store, func() error, error) {
	if opts.Addr == "" {
		return memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          limiterPrefix,
			CleanUpInterval: time.Minute,
		}), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   limiterPrefix,
		MaxRetry: 3,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis limiter store: %w", err)
	}
	return store, client.Close, nil
}

// rateLimit limits requests per client IP. Each route keeps its own counters.
func rateLimit(store limiter.Store, rate limiter.Rate, route string, logger logging.Logger) gin.HandlerFunc {
	return ginlimiter.NewMiddleware(
		limiter.New(store, rate),
		ginlimiter.WithKeyGetter(func(c *gin.Context) string {
			return route + ":" + c.ClientIP()
		}),
		ginlimiter.WithLimitReachedHandler(func(c *gin.Context) {
			c.JSON(http.StatusTooManyRequests, messageResponse{Message: msgTooManyRequests})
		}),
		ginlimiter.WithErrorHandler(func(c *gin.Context, err error) {
			logger.Error(c.Request.Context(), "rate limiter failed", "route", route, "error", err)
			c.JSON(http.StatusInternalServerError, messageResponse{Message: msgRateLimiterFailed})
		}),
	)
}
