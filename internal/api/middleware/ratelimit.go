package middleware

import (
	"context"
	"math"
	"strconv"
	"time"

	"resume-ats-go/internal/metrics"
	"resume-ats-go/pkg/ratelimit"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// RateLimit 按客户端 IP 的令牌桶限流，limiter 为 nil 时直接放行
func RateLimit(limiter *ratelimit.KeyedLimiter) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		if limiter == nil {
			ctx.Next(c)
			return
		}
		ok, wait := limiter.Allow(ctx.ClientIP())
		if ok {
			ctx.Next(c)
			return
		}
		metrics.RateLimited.WithLabelValues(routeLabel(ctx)).Inc()
		ctx.Response.Header.Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		ctx.AbortWithStatusJSON(consts.StatusTooManyRequests, utils.H{"detail": "Too many requests"})
	}
}

// retryAfterSeconds 向上取整，至少 1 秒
func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
