package middleware

import (
	"context"
	"time"

	"resume-ats-go/internal/logger"
	"resume-ats-go/internal/metrics"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
)

// HeaderRequestID 请求ID头，客户端传入时沿用
const HeaderRequestID = "X-Request-ID"

// routeLabel 使用注册的路由模板作为指标标签，未匹配的请求归为一类
func routeLabel(ctx *app.RequestContext) string {
	if p := ctx.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

// AccessLog 为每个请求分配请求ID，记录访问日志和 HTTP 指标
func AccessLog() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()

		requestID := string(ctx.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.Response.Header.Set(HeaderRequestID, requestID)
		c = logger.WithFields(c, map[string]interface{}{"request_id": requestID})

		ctx.Next(c)

		status := ctx.Response.StatusCode()
		method := string(ctx.Method())
		elapsed := time.Since(start)
		metrics.RecordAPIRequest(method, routeLabel(ctx), status, elapsed)

		event := logger.Ctx(c).Info()
		if status >= 500 {
			event = logger.Ctx(c).Error()
		} else if status >= 400 {
			event = logger.Ctx(c).Warn()
		}
		event.
			Str("method", method).
			Str("path", string(ctx.Path())).
			Int("status", status).
			Dur("latency", elapsed).
			Str("client_ip", ctx.ClientIP()).
			Msg("request")
	}
}
