package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-ats-go/internal/tracing"
)

// HeaderAPIKey API 密钥请求头
const HeaderAPIKey = "X-API-Key"

// APIKey 校验 X-API-Key。keys 为空时返回 nil，调用方不应注册
func APIKey(keys []string) app.HandlerFunc {
	valid := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			valid = append(valid, []byte(k))
		}
	}
	if len(valid) == 0 {
		return nil
	}

	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+HeaderAPIKey, ""),
		keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
			for _, v := range valid {
				if subtle.ConstantTimeCompare(v, []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		}),
		keyauth.WithErrorHandler(func(c context.Context, ctx *app.RequestContext, err error) {
			tracing.RecordError(trace.SpanFromContext(c), err, tracing.ErrorTypePermission,
				attribute.Int("http.status_code", consts.StatusUnauthorized))
			ctx.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"detail": "Invalid or missing API key"})
		}),
	)
}
