package ratelimit

import (
	"context"
	"fmt"

	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyQueryBucket = "query:bucket:%s"

type QueryLimiterParam struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Redis   *redis.Client
}

// QueryLimiter throttles the query endpoint per credential. Without a
// Redis client the limiter fails open: availability of answers beats
// strict throttling.
type QueryLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewQueryLimiter(p QueryLimiterParam) *QueryLimiter {
	limiter := &QueryLimiter{
		enabled: p.Config.RateLimit.Enabled && p.Redis != nil,
		bucket:  NewTokenBucket(p.Redis),
		rate:    p.Config.RateLimit.Rate,
		burst:   p.Config.RateLimit.Burst,
		log:     p.Log.Named("ratelimit.query"),
		metrics: p.Metrics,
	}
	if p.Config.RateLimit.Enabled && p.Redis == nil {
		limiter.log.Warn("rate limiting enabled but redis is not configured, failing open")
	}
	return limiter
}

// Allow checks whether one more query is permitted for the credential.
func (l *QueryLimiter) Allow(ctx context.Context, tenantID, credential string) (*Result, error) {
	if l == nil || !l.enabled {
		return &Result{Allowed: true}, nil
	}

	result, err := l.bucket.Allow(ctx, fmt.Sprintf(keyQueryBucket, credential), l.rate, l.burst)
	if err != nil {
		// Redis trouble fails open.
		l.log.Warn("rate limit check failed, allowing request", zap.Error(err))
		return &Result{Allowed: true}, nil
	}

	if result.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, tenantID, "query")
	} else {
		l.metrics.RecordRateLimitDenied(ctx, tenantID, "query", "bucket_empty")
	}
	return result, nil
}
