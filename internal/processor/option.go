package processor

import (
	"strings"
	"time"

	"resume-ats-go/internal/storage"
)

// Components 分析器依赖的组件。Extractor 和 Scorer 必需，其余为 nil 时跳过对应步骤。
type Components struct {
	Extractor DocumentExtractor
	Scorer    Scorer
	Cache     ResultCache
	Archive   storage.ObjectArchive
	Recorder  AnalysisRecorder
	Publisher storage.Publisher
}

// Settings 分析器设置
type Settings struct {
	// 上传大小上限（字节），0 表示不限制
	MaxFileSize int64
	// 允许的扩展名（小写，含点），为空时不限制
	AllowedExtensions []string
	// 请求可指定的最大 top_k
	MaxTopK int
	// 缓存有效期，0 时由缓存实现决定
	CacheTTL time.Duration
	// 同一文本并发分析时的锁有效期
	LockTTL time.Duration
	// 未拿到锁时等待其他请求写入缓存的时长
	LockWait time.Duration
	// 事件发布目标，为空时不发事件
	EventsExchange     string
	AnalyzedRoutingKey string
}

// ComponentOpt 组件选项类型，仅改变 Components 结构体内的字段
type ComponentOpt func(*Components)

// SettingOpt 设置选项类型，仅改变 Settings 结构体内的字段
type SettingOpt func(*Settings)

func defaultSettings() Settings {
	return Settings{
		MaxTopK:  20,
		LockTTL:  30 * time.Second,
		LockWait: 2 * time.Second,
	}
}

// ----- 组件选项 -----

// WithcompExtractor 设置文本提取器
func WithcompExtractor(ex DocumentExtractor) ComponentOpt {
	return func(c *Components) {
		c.Extractor = ex
	}
}

// WithcompScorer 设置评分引擎
func WithcompScorer(s Scorer) ComponentOpt {
	return func(c *Components) {
		c.Scorer = s
	}
}

// WithcompCache 设置结果缓存
func WithcompCache(cache ResultCache) ComponentOpt {
	return func(c *Components) {
		c.Cache = cache
	}
}

// WithcompArchive 设置原始文件归档
func WithcompArchive(a storage.ObjectArchive) ComponentOpt {
	return func(c *Components) {
		c.Archive = a
	}
}

// WithcompRecorder 设置审计记录
func WithcompRecorder(r AnalysisRecorder) ComponentOpt {
	return func(c *Components) {
		c.Recorder = r
	}
}

// WithcompPublisher 设置事件发布器，仅在没有数据库时直接发布
func WithcompPublisher(p storage.Publisher) ComponentOpt {
	return func(c *Components) {
		c.Publisher = p
	}
}

// WithcompStorage 从存储管理器中取出已初始化的组件
func WithcompStorage(s *storage.Storage) ComponentOpt {
	return func(c *Components) {
		if s == nil {
			return
		}
		// 避免把 nil 指针装进接口
		if s.Redis != nil {
			c.Cache = s.Redis
		}
		if s.Archive != nil {
			c.Archive = s.Archive
		}
		if s.Database != nil {
			c.Recorder = s.Database
		}
		if s.RabbitMQ != nil {
			c.Publisher = s.RabbitMQ
		}
	}
}

// ----- 设置选项 -----

// WithsetMaxFileSize 设置上传大小上限
func WithsetMaxFileSize(n int64) SettingOpt {
	return func(s *Settings) {
		s.MaxFileSize = n
	}
}

// WithsetAllowedExtensions 设置允许的扩展名
func WithsetAllowedExtensions(exts []string) SettingOpt {
	return func(s *Settings) {
		s.AllowedExtensions = s.AllowedExtensions[:0]
		for _, e := range exts {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			s.AllowedExtensions = append(s.AllowedExtensions, e)
		}
	}
}

// WithsetMaxTopK 设置 top_k 上限
func WithsetMaxTopK(k int) SettingOpt {
	return func(s *Settings) {
		if k > 0 {
			s.MaxTopK = k
		}
	}
}

// WithsetCacheTTL 设置缓存有效期
func WithsetCacheTTL(d time.Duration) SettingOpt {
	return func(s *Settings) {
		s.CacheTTL = d
	}
}

// WithsetLock 设置互斥锁有效期和等待时长
func WithsetLock(ttl, wait time.Duration) SettingOpt {
	return func(s *Settings) {
		if ttl > 0 {
			s.LockTTL = ttl
		}
		if wait >= 0 {
			s.LockWait = wait
		}
	}
}

// WithsetEvents 设置 resume.analyzed 事件的发布目标
func WithsetEvents(exchange, routingKey string) SettingOpt {
	return func(s *Settings) {
		s.EventsExchange = exchange
		s.AnalyzedRoutingKey = routingKey
	}
}
