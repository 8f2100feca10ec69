package parser_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"resume-ats-go/internal/config"
	"resume-ats-go/internal/parser"
	"resume-ats-go/internal/scoring"

	"github.com/cloudwego/eino/components/embedding"
	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// fakeEmbeddingServer 每个输入返回 [len(text), index]，并逆序返回 data 以检验按 index 还原
func fakeEmbeddingServer(t *testing.T, status int, calls *int32, lastModel *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var req embedRequest
		require.NoError(t, json.Unmarshal(body, &req))
		if lastModel != nil {
			*lastModel = req.Model
		}

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"rate_limit"}}`))
			return
		}
		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"index":     i,
				"embedding": []float64{float64(len(req.Input[i])), float64(i)},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data, "usage": map[string]int{"total_tokens": 7}})
	}))
}

func TestRemoteEmbedder_EmbedStrings(t *testing.T) {
	var calls int32
	var model string
	srv := fakeEmbeddingServer(t, http.StatusOK, &calls, &model)
	defer srv.Close()

	emb, err := parser.NewRemoteEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "m1"})
	require.NoError(t, err)

	vecs, err := emb.EmbedStrings(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {3, 1}, {2, 2}}, vecs)
	assert.Equal(t, "m1", model)

	_, err = emb.EmbedStrings(context.Background(), []string{"x"}, embedding.WithModel("m2"))
	require.NoError(t, err)
	assert.Equal(t, "m2", model)

	empty, err := emb.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRemoteEmbedder_ErrorsTripBreaker(t *testing.T) {
	var calls int32
	srv := fakeEmbeddingServer(t, http.StatusTooManyRequests, &calls, nil)
	defer srv.Close()

	emb, err := parser.NewRemoteEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", emb.Model())

	for i := 0; i < 5; i++ {
		_, err := emb.EmbedStrings(context.Background(), []string{"python"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exceeded")
	}
	_, err = emb.EmbedStrings(context.Background(), []string{"python"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestRemoteEmbedder_RequiresBaseURL(t *testing.T) {
	_, err := parser.NewRemoteEmbedder(config.EmbeddingConfig{})
	assert.Error(t, err)
}

// 远程服务不可用时岗位推荐降级为固定分
func TestRemoteEmbedder_EngineFallback(t *testing.T) {
	var calls int32
	srv := fakeEmbeddingServer(t, http.StatusInternalServerError, &calls, nil)
	defer srv.Close()

	emb, err := parser.NewRemoteEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)

	var fallbacks int
	engine := scoring.NewEngine(
		scoring.WithEmbedder(emb),
		scoring.WithFallbackObserver(func(error) { fallbacks++ }),
	)
	res := engine.Analyze(context.Background(), "Python developer with SQL and AWS experience")
	require.Len(t, res.JobRecommendations, scoring.DefaultTopK)
	for _, rec := range res.JobRecommendations {
		assert.Equal(t, scoring.FallbackScore, rec.Score)
	}
	assert.Equal(t, 1, fallbacks)
}
