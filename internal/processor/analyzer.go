package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-ats-go/internal/constants"
	"resume-ats-go/internal/logger"
	"resume-ats-go/internal/metrics"
	"resume-ats-go/internal/outbox"
	"resume-ats-go/internal/parser"
	"resume-ats-go/internal/scoring"
	"resume-ats-go/internal/storage"
	"resume-ats-go/internal/storage/models"
	"resume-ats-go/internal/tracing"
	"resume-ats-go/internal/types"
	"resume-ats-go/pkg/utils"
)

var tracer = otel.Tracer("resume-ats-go/processor")

// lockPollInterval 未拿到锁时轮询缓存的间隔
const lockPollInterval = 100 * time.Millisecond

// ResumeAnalyzer 简历分析服务：提取文本、查缓存、评分，并尽力完成归档、审计和事件发布。
// 评分本身无状态，外部依赖失败只降级不影响返回结果。
type ResumeAnalyzer struct {
	components Components
	settings   Settings
}

// NewResumeAnalyzer 创建分析服务
func NewResumeAnalyzer(compOpts []ComponentOpt, setOpts []SettingOpt) (*ResumeAnalyzer, error) {
	a := &ResumeAnalyzer{settings: defaultSettings()}
	for _, opt := range compOpts {
		opt(&a.components)
	}
	for _, opt := range setOpts {
		opt(&a.settings)
	}
	if a.components.Extractor == nil {
		return nil, errors.New("extractor is not initialized")
	}
	if a.components.Scorer == nil {
		return nil, errors.New("scorer is not initialized")
	}
	return a, nil
}

// Settings 当前设置
func (a *ResumeAnalyzer) Settings() Settings {
	return a.settings
}

// AnalyzeDocument 分析一次上传的文件
func (a *ResumeAnalyzer) AnalyzeDocument(ctx context.Context, up Upload) (*types.AnalysisResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "ResumeAnalyzer.AnalyzeDocument",
		trace.WithAttributes(
			attribute.String("file.name", tracing.SafeFilename(up.Filename)),
			attribute.Int("file.size", len(up.Data)),
		))
	defer span.End()

	if err := a.validateUpload(up); err != nil {
		return nil, a.fail(span, err)
	}

	text, err := a.components.Extractor.Extract(ctx, up.Filename, up.Data)
	if err != nil {
		metrics.ExtractionFailures.WithLabelValues(string(parser.KindOf(up.Filename))).Inc()
		logger.Ctx(ctx).Warn().Err(err).Str("filename", up.Filename).Msg("提取简历文本失败")
		return nil, a.fail(span, newExtractError(up.Filename, err.Error()))
	}

	result, cacheHit, err := a.score(ctx, text, up.TopK)
	if err != nil {
		return nil, a.fail(span, newScoreError(up.Filename, err))
	}

	a.finish(ctx, result, cacheHit, persistInput{
		source:   models.SourceUpload,
		filename: up.Filename,
		data:     up.Data,
		text:     text,
	})
	metrics.RecordAnalysis(models.SourceUpload, cacheHit, result.OverallScore, time.Since(start))
	span.SetAttributes(
		attribute.String("analysis.id", result.AnalysisID),
		attribute.Int("ats.overall_score", result.OverallScore),
		attribute.Bool("cache.hit", cacheHit),
	)
	return result, nil
}

// AnalyzeText 直接分析纯文本
func (a *ResumeAnalyzer) AnalyzeText(ctx context.Context, text string, topK int) (*types.AnalysisResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "ResumeAnalyzer.AnalyzeText",
		trace.WithAttributes(attribute.Int("text.length", len(text))))
	defer span.End()

	result, cacheHit, err := a.score(ctx, text, topK)
	if err != nil {
		return nil, a.fail(span, err)
	}
	a.finish(ctx, result, cacheHit, persistInput{source: models.SourceText, text: text})
	metrics.RecordAnalysis(models.SourceText, cacheHit, result.OverallScore, time.Since(start))
	return result, nil
}

func (a *ResumeAnalyzer) validateUpload(up Upload) error {
	if len(up.Data) == 0 {
		return &AnalysisError{Filename: up.Filename, Op: "validate", BaseErr: ErrEmptyUpload}
	}
	if a.settings.MaxFileSize > 0 && int64(len(up.Data)) > a.settings.MaxFileSize {
		return newSizeError(up.Filename, int64(len(up.Data)), a.settings.MaxFileSize)
	}
	if len(a.settings.AllowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(up.Filename))
		for _, allowed := range a.settings.AllowedExtensions {
			if ext == allowed {
				return nil
			}
		}
		return newTypeError(up.Filename, ext)
	}
	return nil
}

func (a *ResumeAnalyzer) fail(span trace.Span, err error) error {
	reason := FailureReason(err)
	metrics.RecordAnalysisFailure(reason)
	errType := tracing.ErrorTypeValidation
	if reason == "internal" {
		errType = tracing.ClassifyError(err, tracing.ErrorTypeInternal)
	}
	attrs := []attribute.KeyValue{attribute.String("analysis.failure_reason", reason)}
	var aerr *AnalysisError
	if errors.As(err, &aerr) {
		attrs = append(attrs, attribute.String("analysis.op", aerr.Op))
	}
	tracing.RecordError(span, err, errType, attrs...)
	return err
}

// clampTopK 把请求的 top_k 限制在 [1, MaxTopK]
func (a *ResumeAnalyzer) clampTopK(topK int) int {
	if topK <= 0 {
		topK = a.components.Scorer.DefaultTopK()
	}
	if a.settings.MaxTopK > 0 && topK > a.settings.MaxTopK {
		topK = a.settings.MaxTopK
	}
	return topK
}

// score 查缓存或评分。缓存保存完整排名，返回前按 top_k 截取。
func (a *ResumeAnalyzer) score(ctx context.Context, text string, topK int) (*types.AnalysisResult, bool, error) {
	if scoring.Normalize(text) == "" {
		return nil, false, ErrNoUsableText
	}
	topK = a.clampTopK(topK)

	fp := a.components.Scorer.Fingerprint()
	textMD5 := utils.TextMD5(text)

	if cached := a.lookup(ctx, fp, textMD5); cached != nil {
		return truncate(cached, topK), true, nil
	}

	cache := a.components.Cache
	if cache == nil {
		return truncate(a.compute(ctx, text), topK), false, nil
	}

	lockKey := storage.AnalysisLockKey(fp, textMD5)
	owner, err := cache.AcquireLock(ctx, lockKey, a.settings.LockTTL)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("获取分析锁失败，直接评分")
	}
	if owner == "" && err == nil {
		// 相同文本正在被其他请求评分，短暂等待其结果
		if cached := a.waitForCache(ctx, fp, textMD5); cached != nil {
			return truncate(cached, topK), true, nil
		}
	}

	full := a.compute(ctx, text)
	if setErr := cache.SetAnalysis(ctx, fp, textMD5, full, a.settings.CacheTTL); setErr != nil {
		logger.Ctx(ctx).Warn().Err(setErr).Msg("写入分析缓存失败")
	}
	if owner != "" {
		if _, relErr := cache.ReleaseLock(ctx, lockKey, owner); relErr != nil {
			logger.Ctx(ctx).Warn().Err(relErr).Msg("释放分析锁失败")
		}
	}
	return truncate(full, topK), false, nil
}

// compute 用最大 top_k 评分，得到可缓存的完整结果
func (a *ResumeAnalyzer) compute(ctx context.Context, text string) *types.AnalysisResult {
	return a.components.Scorer.AnalyzeTopK(ctx, text, a.settings.MaxTopK)
}

func (a *ResumeAnalyzer) lookup(ctx context.Context, fp, textMD5 string) *types.AnalysisResult {
	if a.components.Cache == nil {
		return nil
	}
	cached, err := a.components.Cache.GetAnalysis(ctx, fp, textMD5)
	if err != nil {
		if !storage.IsNotFound(err) {
			logger.Ctx(ctx).Warn().Err(err).Msg("读取分析缓存失败")
		}
		metrics.RecordCacheLookup(false)
		return nil
	}
	metrics.RecordCacheLookup(true)
	return cached
}

func (a *ResumeAnalyzer) waitForCache(ctx context.Context, fp, textMD5 string) *types.AnalysisResult {
	deadline := time.Now().Add(a.settings.LockWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(lockPollInterval):
		}
		cached, err := a.components.Cache.GetAnalysis(ctx, fp, textMD5)
		if err == nil {
			return cached
		}
	}
	return nil
}

// truncate 返回按 top_k 截取推荐列表的副本
func truncate(full *types.AnalysisResult, topK int) *types.AnalysisResult {
	out := *full
	if topK >= 0 && len(out.JobRecommendations) > topK {
		out.JobRecommendations = append([]types.JobRecommendation(nil), full.JobRecommendations[:topK]...)
	}
	return &out
}

type persistInput struct {
	source   string
	filename string
	data     []byte
	text     string
}

// finish 分配分析ID，并尽力完成归档、审计记录与事件发布
func (a *ResumeAnalyzer) finish(ctx context.Context, result *types.AnalysisResult, cacheHit bool, in persistInput) {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.Must(uuid.NewV4())
	}
	result.AnalysisID = id.String()
	result.Cached = cacheHit

	l := logger.Ctx(ctx).With().Str("analysis_id", result.AnalysisID).Str("source", in.source).Logger()

	if counter, ok := a.components.Cache.(analysisCounter); ok {
		if _, err := counter.IncrAnalysisCounter(ctx); err != nil {
			l.Debug().Err(err).Msg("更新分析计数失败")
		}
	}

	var archiveBackend, archiveKey, rawMD5 string
	if a.components.Archive != nil && len(in.data) > 0 {
		key, sum, err := a.components.Archive.ArchiveResume(ctx, result.AnalysisID, in.filename, in.data)
		if err != nil {
			l.Warn().Err(err).Str("backend", a.components.Archive.Name()).Msg("归档原始文件失败")
		} else {
			archiveBackend, archiveKey, rawMD5 = a.components.Archive.Name(), key, sum
		}
	}
	if rawMD5 == "" && len(in.data) > 0 {
		rawMD5 = utils.CalculateMD5(in.data)
	}

	now := time.Now().UTC()
	event := AnalyzedEvent{
		AnalysisID:      result.AnalysisID,
		Source:          in.source,
		OverallScore:    result.OverallScore,
		SkillCount:      len(result.SkillsProficiency),
		TaxonomyVersion: result.TaxonomyVersion,
		CacheHit:        cacheHit,
		ArchiveKey:      archiveKey,
		CreatedAt:       now,
	}
	if len(result.JobRecommendations) > 0 {
		event.TopRole = result.JobRecommendations[0].Role
	}

	if a.components.Recorder != nil {
		record := &models.AnalysisRecord{
			AnalysisID:          result.AnalysisID,
			Source:              in.source,
			OriginalFilename:    in.filename,
			FileSize:            int64(len(in.data)),
			RawFileMD5:          rawMD5,
			TextMD5:             utils.TextMD5(in.text),
			TaxonomyVersion:     result.TaxonomyVersion,
			TaxonomyFingerprint: a.components.Scorer.Fingerprint(),
			ArchiveBackend:      archiveBackend,
			ArchiveObjectKey:    archiveKey,
			OverallScore:        result.OverallScore,
			Breakdown:           utils.ToJSON(result.ATSBreakdown),
			Skills:              utils.ToJSON(result.SkillsProficiency),
			Recommendations:     utils.ToJSON(result.JobRecommendations),
			WordCount:           result.KeyMetrics.WordCount,
			CacheHit:            cacheHit,
			CreatedAt:           now,
		}
		var events []*models.OutboxMessage
		if a.eventsEnabled() {
			msg, err := outbox.NewEvent(constants.AggregateAnalysis, result.AnalysisID, constants.EventResumeAnalyzed,
				a.settings.EventsExchange, a.settings.AnalyzedRoutingKey, event)
			if err != nil {
				l.Warn().Err(err).Msg("构造分析事件失败")
			} else {
				events = append(events, msg)
			}
		}
		if err := a.components.Recorder.SaveAnalysis(ctx, record, events...); err != nil {
			l.Warn().Err(err).Msg("保存分析记录失败")
		}
		return
	}

	// 没有数据库时直接发布，失败只记录日志
	if a.components.Publisher != nil && a.eventsEnabled() {
		if err := a.publish(ctx, event); err != nil {
			l.Warn().Err(err).Msg("发布分析事件失败")
		}
	}
}

func (a *ResumeAnalyzer) eventsEnabled() bool {
	return a.settings.EventsExchange != "" && a.settings.AnalyzedRoutingKey != ""
}

func (a *ResumeAnalyzer) publish(ctx context.Context, event AnalyzedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化分析事件失败: %w", err)
	}
	return a.components.Publisher.PublishMessage(ctx, a.settings.EventsExchange, a.settings.AnalyzedRoutingKey, body, true)
}
