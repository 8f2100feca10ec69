package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"resume-ats-go/internal/constants"
	"resume-ats-go/internal/storage"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const defaultPingTimeout = 2 * time.Second

// DependencyStatus 单个依赖的检查结果
type DependencyStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status       string             `json:"status"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// HealthHandler 存活与就绪检查
type HealthHandler struct {
	deps        map[string]storage.Pinger
	pingTimeout time.Duration
}

// NewHealthHandler deps 为空时就绪检查总是通过
func NewHealthHandler(deps map[string]storage.Pinger, pingTimeout time.Duration) *HealthHandler {
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}
	return &HealthHandler{deps: deps, pingTimeout: pingTimeout}
}

// HandleRoot GET /
func (h *HealthHandler) HandleRoot(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, utils.H{"message": constants.ServiceBanner})
}

// HandleLiveness GET /health
func (h *HealthHandler) HandleLiveness(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, utils.H{"status": "healthy"})
}

// HandleReadiness 并发探测所有已配置依赖，任一失败返回 503
// GET /api/v1/health/ready
func (h *HealthHandler) HandleReadiness(c context.Context, ctx *app.RequestContext) {
	resp := h.check(c)
	status := consts.StatusOK
	if resp.Status != "ready" {
		status = consts.StatusServiceUnavailable
	}
	ctx.JSON(status, resp)
}

func (h *HealthHandler) check(ctx context.Context) ReadinessResponse {
	results := make([]DependencyStatus, 0, len(h.deps))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, dep := range h.deps {
		wg.Add(1)
		go func(name string, dep storage.Pinger) {
			defer wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, h.pingTimeout)
			defer cancel()

			start := time.Now()
			err := dep.Ping(pingCtx)
			st := DependencyStatus{Name: name, Status: "up", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				st.Status = "down"
				st.Error = err.Error()
			}
			mu.Lock()
			results = append(results, st)
			mu.Unlock()
		}(name, dep)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	overall := "ready"
	for _, r := range results {
		if r.Status != "up" {
			overall = "degraded"
			break
		}
	}
	return ReadinessResponse{Status: overall, Dependencies: results}
}
