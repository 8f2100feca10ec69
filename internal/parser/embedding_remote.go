package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"resume-ats-go/internal/config"
	"resume-ats-go/internal/logger"

	"github.com/cloudwego/eino/components/embedding"
	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultEmbeddingModel   = "text-embedding-3-small"
	defaultEmbeddingTimeout = 10 * time.Second
	// 响应体上限，防止异常响应占满内存
	maxEmbeddingResponseBytes = 32 << 20
)

// ErrEmbeddingCountMismatch 返回的向量数量与输入不一致
var ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")

// RemoteEmbedder 调用 OpenAI 兼容的 /embeddings 接口，实现 embedding.Embedder。
// 连续失败后熔断，调用方据此降级为固定分。
type RemoteEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[][]float64]
}

// embeddingRequest OpenAI 兼容请求
type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Data  []embeddingEntry `json:"data"`
	Model string           `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *embeddingAPIError `json:"error,omitempty"`
}

type embeddingEntry struct {
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewRemoteEmbedder 创建远程向量化客户端
func NewRemoteEmbedder(cfg config.EmbeddingConfig) (*RemoteEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base_url 不能为空")
	}
	model := cfg.Model
	if model == "" {
		model = defaultEmbeddingModel
	}

	e := &RemoteEmbedder{
		apiKey:     cfg.APIKey,
		model:      model,
		dimensions: cfg.Dimensions,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: config.GetDuration(cfg.Timeout, defaultEmbeddingTimeout)},
	}
	e.breaker = gobreaker.NewCircuitBreaker[[][]float64](gobreaker.Settings{
		Name:        "embedding",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("向量化熔断状态变化")
		},
	})
	return e, nil
}

// Model 当前使用的模型名
func (e *RemoteEmbedder) Model() string { return e.model }

// EmbedStrings 实现 embedding.Embedder，每个输入文本返回一个向量，顺序与输入一致
func (e *RemoteEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	options := embedding.GetCommonOptions(&embedding.Options{}, opts...)
	model := e.model
	if options.Model != nil && *options.Model != "" {
		model = *options.Model
	}

	return e.breaker.Execute(func() ([][]float64, error) {
		return e.embed(ctx, texts, model)
	})
}

func (e *RemoteEmbedder) embed(ctx context.Context, texts []string, model string) ([][]float64, error) {
	payload, err := json.Marshal(embeddingRequest{
		Input:          texts,
		Model:          model,
		Dimensions:     e.dimensions,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEmbeddingResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	var parsed embeddingResponse
	decodeErr := json.Unmarshal(body, &parsed)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return nil, fmt.Errorf("API调用失败, 状态码: %d, 类型: %s, 错误: %s", resp.StatusCode, parsed.Error.Type, parsed.Error.Message)
		}
		return nil, fmt.Errorf("API调用失败, 状态码: %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w", decodeErr)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("API返回错误: 类型=%s, 消息=%s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: 期望 %d, 实际 %d", ErrEmbeddingCountMismatch, len(texts), len(parsed.Data))
	}

	// 按 index 还原输入顺序
	out := make([][]float64, len(texts))
	for i, entry := range parsed.Data {
		idx := entry.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = i
		}
		out[idx] = entry.Embedding
	}

	logger.Ctx(ctx).Debug().
		Str("model", model).
		Int("texts", len(texts)).
		Int("dim", firstDim(out)).
		Int("total_tokens", parsed.Usage.TotalTokens).
		Dur("latency", time.Since(start)).
		Msg("向量化完成")
	return out, nil
}

func firstDim(vectors [][]float64) int {
	if len(vectors) > 0 {
		return len(vectors[0])
	}
	return 0
}
