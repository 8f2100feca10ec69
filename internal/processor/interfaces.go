package processor

import (
	"context"
	"time"

	"resume-ats-go/internal/storage/models"
	"resume-ats-go/internal/types"
)

//
// 文本提取
//

// DocumentExtractor 按文件名分发的文档文本提取器
type DocumentExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

//
// 评分
//

// Scorer 评分引擎
type Scorer interface {
	// AnalyzeTopK 对原始文本评分，岗位推荐截取前 topK 个
	AnalyzeTopK(ctx context.Context, raw string, topK int) *types.AnalysisResult
	// Fingerprint 词表指纹，作为缓存键的一部分
	Fingerprint() string
	DefaultTopK() int
}

//
// 存储
//

// ResultCache 分析结果缓存与同文本互斥锁
type ResultCache interface {
	GetAnalysis(ctx context.Context, fingerprint, textMD5 string) (*types.AnalysisResult, error)
	SetAnalysis(ctx context.Context, fingerprint, textMD5 string, result *types.AnalysisResult, ttl time.Duration) error
	AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error)
}

// analysisCounter 可选：缓存实现同时提供全局计数
type analysisCounter interface {
	IncrAnalysisCounter(ctx context.Context) (int64, error)
}

// AnalysisRecorder 审计记录与 outbox 事件在同一事务中写入
type AnalysisRecorder interface {
	SaveAnalysis(ctx context.Context, record *models.AnalysisRecord, events ...*models.OutboxMessage) error
}

//
// 输入输出
//

// Upload 一次文件上传
type Upload struct {
	Filename string
	Data     []byte
	// TopK <=0 时使用引擎默认值
	TopK int
}

// AnalyzedEvent resume.analyzed 事件负载，不含简历正文
type AnalyzedEvent struct {
	AnalysisID      string    `json:"analysis_id"`
	Source          string    `json:"source"`
	OverallScore    int       `json:"overall_score"`
	TopRole         string    `json:"top_role,omitempty"`
	SkillCount      int       `json:"skill_count"`
	TaxonomyVersion string    `json:"taxonomy_version"`
	CacheHit        bool      `json:"cache_hit"`
	ArchiveKey      string    `json:"archive_key,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
