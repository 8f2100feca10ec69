package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cloudwego/eino/components/embedding"

	"resume-ats-go/internal/types"
)

const (
	// DefaultTopK 默认返回的岗位数量
	DefaultTopK = 5
	// FallbackScore 相似度无法计算时每个岗位的中性分数
	FallbackScore = 50
)

// ErrNoIndexableTerms 简历文本去除停用词后没有任何词项，相似度无意义
var ErrNoIndexableTerms = errors.New("resume has no indexable terms")

// DefaultRoles 内置的八个岗位标签
var DefaultRoles = []string{
	"Data Analyst",
	"Machine Learning Engineer",
	"Data Scientist",
	"Full Stack Developer",
	"Backend Developer",
	"DevOps Engineer",
	"Frontend Developer",
	"Business Intelligence Analyst",
}

// Recommender 基于向量空间相似度的岗位排序器
type Recommender struct {
	embedder     embedding.Embedder
	defaultRoles []string
}

// NewRecommender 创建岗位推荐器。embedder 为 nil 时使用 TF-IDF，roles 为空时使用 DefaultRoles
func NewRecommender(embedder embedding.Embedder, roles []string) *Recommender {
	if embedder == nil {
		embedder = NewTFIDFEmbedder()
	}
	if len(roles) == 0 {
		roles = DefaultRoles
	}
	rs := make([]string, len(roles))
	copy(rs, roles)
	return &Recommender{embedder: embedder, defaultRoles: rs}
}

// RecommendJobs 对岗位按与简历的相似度排序，取前 topK 个。
// 任何向量化失败都降级为 Fallback，不会返回错误。
func (r *Recommender) RecommendJobs(ctx context.Context, text string, roles []string, topK int) []types.JobRecommendation {
	recs, err := r.Rank(ctx, text, roles, topK)
	if err != nil {
		return r.Fallback(roles, topK)
	}
	return recs
}

// Rank 与 RecommendJobs 相同，但把失败原因返回给调用方，便于记录日志和指标
func (r *Recommender) Rank(ctx context.Context, text string, roles []string, topK int) (recs []types.JobRecommendation, err error) {
	roles = r.rolesOrDefault(roles)
	topK = normalizeTopK(topK)

	defer func() {
		if p := recover(); p != nil {
			recs = nil
			err = fmt.Errorf("相似度计算发生panic: %v", p)
		}
	}()

	corpus := make([]string, 0, len(roles)+1)
	corpus = append(corpus, text)
	corpus = append(corpus, roles...)

	vectors, err := r.embedder.EmbedStrings(ctx, corpus)
	if err != nil {
		return nil, fmt.Errorf("向量化失败: %w", err)
	}
	if len(vectors) != len(corpus) {
		return nil, fmt.Errorf("向量数量不匹配: got %d, want %d", len(vectors), len(corpus))
	}
	resumeVec := vectors[0]
	if isZero(resumeVec) {
		return nil, ErrNoIndexableTerms
	}

	recs = make([]types.JobRecommendation, 0, len(roles))
	for i, role := range roles {
		sim := dot(resumeVec, vectors[i+1])
		recs = append(recs, types.JobRecommendation{Role: role, Score: similarityScore(sim)})
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Score > recs[j].Score
	})
	if len(recs) > topK {
		recs = recs[:topK]
	}
	return recs, nil
}

// Fallback 每个岗位固定 FallbackScore，保持输入顺序并截断到 topK
func (r *Recommender) Fallback(roles []string, topK int) []types.JobRecommendation {
	roles = r.rolesOrDefault(roles)
	topK = normalizeTopK(topK)
	n := len(roles)
	if n > topK {
		n = topK
	}
	out := make([]types.JobRecommendation, 0, n)
	for _, role := range roles[:n] {
		out = append(out, types.JobRecommendation{Role: role, Score: FallbackScore})
	}
	return out
}

func (r *Recommender) rolesOrDefault(roles []string) []string {
	if len(roles) == 0 {
		return r.defaultRoles
	}
	return roles
}

func normalizeTopK(topK int) int {
	if topK <= 0 {
		return DefaultTopK
	}
	return topK
}

// similarityScore 余弦相似度映射到 [0,100] 的整数
func similarityScore(sim float64) int {
	if math.IsNaN(sim) {
		return 0
	}
	s := int(math.Round(sim * 100))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
