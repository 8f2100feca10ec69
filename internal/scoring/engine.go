package scoring

import (
	"context"
	"math"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"resume-ats-go/internal/logger"
	"resume-ats-go/internal/tracing"
	"resume-ats-go/internal/types"
)

// keywordDensityPad keyword_density = n / max(1, n + pad)
const keywordDensityPad = 10

var tracer = otel.Tracer("resume-ats-go/scoring")

// EngineOption 引擎构造选项
type EngineOption func(*Engine)

// WithTaxonomy 注入技能词表和岗位列表
func WithTaxonomy(t *Taxonomy) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.taxonomy = t
		}
	}
}

// WithEarlyPositionThreshold 设置技能前置加分的位置阈值
func WithEarlyPositionThreshold(n int) EngineOption {
	return func(e *Engine) {
		e.earlyThreshold = n
	}
}

// WithTopK 设置默认推荐岗位数
func WithTopK(k int) EngineOption {
	return func(e *Engine) {
		e.topK = k
	}
}

// WithEmbedder 替换岗位推荐所用的向量化器
func WithEmbedder(emb embedding.Embedder) EngineOption {
	return func(e *Engine) {
		e.embedder = emb
	}
}

// FallbackObserver 推荐降级时的回调，用于指标统计
type FallbackObserver func(reason error)

// WithFallbackObserver 注册推荐降级回调
func WithFallbackObserver(fn FallbackObserver) EngineOption {
	return func(e *Engine) {
		e.onFallback = fn
	}
}

// Engine 评分引擎：无状态，可被多个请求并发复用
type Engine struct {
	taxonomy       *Taxonomy
	earlyThreshold int
	topK           int
	embedder       embedding.Embedder
	onFallback     FallbackObserver

	skills      *SkillExtractor
	recommender *Recommender
	fingerprint string
}

// NewEngine 创建评分引擎
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		earlyThreshold: DefaultEarlyPositionThreshold,
		topK:           DefaultTopK,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.taxonomy == nil {
		e.taxonomy = DefaultTaxonomy()
	}
	e.topK = normalizeTopK(e.topK)
	e.skills = NewSkillExtractor(e.taxonomy.Skills, e.earlyThreshold)
	e.recommender = NewRecommender(e.embedder, e.taxonomy.Roles)
	e.fingerprint = e.taxonomy.Fingerprint()
	return e
}

// Taxonomy 当前使用的词表
func (e *Engine) Taxonomy() *Taxonomy {
	return e.taxonomy
}

// Fingerprint 词表指纹，参与缓存键
func (e *Engine) Fingerprint() string {
	return e.fingerprint
}

// DefaultTopK 引擎的默认推荐数量
func (e *Engine) DefaultTopK() int {
	return e.topK
}

// Analyze 使用默认 topK 分析简历文本
func (e *Engine) Analyze(ctx context.Context, raw string) *types.AnalysisResult {
	return e.AnalyzeTopK(ctx, raw, e.topK)
}

// AnalyzeTopK 分析简历文本。
// 实体与技能基于归一化文本；格式分需要换行信息，因此对原始文本计算。
func (e *Engine) AnalyzeTopK(ctx context.Context, raw string, topK int) *types.AnalysisResult {
	ctx, span := tracer.Start(ctx, "scoring.Analyze")
	defer span.End()

	if topK <= 0 {
		topK = e.topK
	}

	text := Normalize(raw)
	entities := ExtractEntities(text)
	skills := e.skills.ExtractSkills(text)
	overall, breakdown := ComputeScore(skills, raw, entities)

	recs, err := e.recommender.Rank(ctx, text, nil, topK)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		logger.Ctx(ctx).Debug().Err(err).Msg("岗位推荐降级为固定分数")
		recs = e.recommender.Fallback(nil, topK)
		if e.onFallback != nil {
			e.onFallback(err)
		}
	}

	result := &types.AnalysisResult{
		OverallScore:       overall,
		ATSBreakdown:       breakdown,
		SkillsProficiency:  skills,
		JobRecommendations: recs,
		Entities:           entities,
		KeyMetrics: types.KeyMetrics{
			KeywordDensity:    round2(float64(len(skills)) / math.Max(1, float64(len(skills)+keywordDensityPad))),
			FormattingClarity: round2(breakdown.FormattingScore),
			WordCount:         len(strings.Fields(text)),
		},
		TaxonomyVersion: e.taxonomy.Version,
	}

	span.SetAttributes(
		attribute.Int("ats.overall_score", overall),
		attribute.Int("ats.skill_count", len(skills)),
		attribute.Int("ats.word_count", result.KeyMetrics.WordCount),
		attribute.Bool("ats.recommend_fallback", err != nil),
	)
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
