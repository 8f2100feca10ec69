package router

import (
	"resume-ats-go/internal/api/handler"
	"resume-ats-go/internal/api/middleware"
	"resume-ats-go/pkg/ratelimit"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMetricsPath = "/metrics"

// Handlers 路由用到的处理器，Contact 为 nil 时不注册联系表单接口
type Handlers struct {
	Resume  *handler.ResumeHandler
	Contact *handler.ContactHandler
	Health  *handler.HealthHandler
}

// Options 路由级中间件配置
type Options struct {
	AllowOrigins []string
	APIKeys      []string
	Limiter      *ratelimit.KeyedLimiter
	MetricsPath  string
}

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, hs Handlers, opts Options) {
	h.Use(middleware.AccessLog(), middleware.CORS(opts.AllowOrigins))

	// 健康检查和指标不限流也不鉴权
	h.GET("/", hs.Health.HandleRoot)
	h.GET("/health", hs.Health.HandleLiveness)
	h.GET("/api/v1/health", hs.Health.HandleLiveness)
	h.GET("/api/v1/health/ready", hs.Health.HandleReadiness)

	metricsPath := opts.MetricsPath
	if metricsPath == "" {
		metricsPath = defaultMetricsPath
	}
	h.GET(metricsPath, adaptor.HertzHandler(promhttp.Handler()))

	guards := []app.HandlerFunc{middleware.RateLimit(opts.Limiter)}
	if auth := middleware.APIKey(opts.APIKeys); auth != nil {
		guards = append(guards, auth)
	}
	with := func(hf app.HandlerFunc) []app.HandlerFunc {
		out := make([]app.HandlerFunc, 0, len(guards)+1)
		out = append(out, guards...)
		return append(out, hf)
	}

	api := h.Group("/api/v1")
	api.POST("/resume/analyze", with(hs.Resume.HandleAnalyze)...)
	api.POST("/resume/analyze-text", with(hs.Resume.HandleAnalyzeText)...)
	api.POST("/resume/test-upload", with(hs.Resume.HandleTestUpload)...)

	// 兼容旧前端的路径
	h.POST("/analyze_resume", with(hs.Resume.HandleAnalyze)...)
	h.POST("/test_upload", with(hs.Resume.HandleTestUpload)...)

	if hs.Contact != nil {
		api.POST("/contact", with(hs.Contact.HandleContact)...)
		h.POST("/send_email", with(hs.Contact.HandleContact)...)
	}
}
