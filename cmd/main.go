package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-ats-go/internal/api/handler"
	"resume-ats-go/internal/api/router"
	"resume-ats-go/internal/config"
	"resume-ats-go/internal/constants"
	"resume-ats-go/internal/logger"
	"resume-ats-go/internal/mailer"
	"resume-ats-go/internal/metrics"
	"resume-ats-go/internal/outbox"
	"resume-ats-go/internal/parser"
	"resume-ats-go/internal/processor"
	"resume-ats-go/internal/scoring"
	"resume-ats-go/internal/storage"
	"resume-ats-go/internal/tracing"
	"resume-ats-go/pkg/ratelimit"

	"github.com/cloudwego/hertz/pkg/app/server"
	hconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/google/gops/agent"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

// version 构建时通过 -ldflags "-X main.version=..." 注入
var version = "dev"

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}

	logCloser, err := logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		File:         cfg.Logger.File,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化日志失败")
	}
	defer logCloser.Close()
	logger.SetupHertz()
	logger.Info().Str("service", constants.ServiceName).Str("version", version).Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Diagnostics.GopsEnabled {
		if err := agent.Listen(agent.Options{Addr: cfg.Diagnostics.GopsAddr, ShutdownCleanup: true}); err != nil {
			logger.Warn().Err(err).Msg("启动 gops agent 失败")
		} else {
			defer agent.Close()
		}
	}

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
			Endpoint:       cfg.Tracing.Endpoint,
			Insecure:       cfg.Tracing.Insecure,
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version,
			SampleRatio:    cfg.Tracing.SampleRatio,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("初始化追踪失败，继续运行")
		} else {
			defer func() {
				shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
				defer c()
				_ = shutdownTracing(shutdownCtx)
			}()
		}
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer storageManager.Close()

	engine, err := newScoringEngine(cfg.Scoring)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化评分引擎失败")
	}
	logger.Info().
		Str("taxonomy_version", engine.Taxonomy().Version).
		Str("fingerprint", engine.Fingerprint()).
		Msg("评分引擎初始化成功")

	extractor, err := parser.NewRegistry(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化文本提取器失败")
	}

	analyzer, err := processor.NewResumeAnalyzer(
		[]processor.ComponentOpt{
			processor.WithcompExtractor(extractor),
			processor.WithcompScorer(engine),
			processor.WithcompStorage(storageManager),
		},
		analyzerSettings(cfg, storageManager),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化分析服务失败")
	}

	sender := newSender(cfg.Mail)
	contactService := newContactService(cfg, storageManager, sender)

	var relay *outbox.MessageRelay
	if cfg.Outbox.Enabled && storageManager.Database != nil && storageManager.RabbitMQ != nil {
		relay = outbox.NewMessageRelay(storageManager.Database.DB(), storageManager.RabbitMQ,
			outbox.WithPollingInterval(config.GetDuration(cfg.Outbox.PollInterval, 2*time.Second)),
			outbox.WithBatchSize(cfg.Outbox.BatchSize),
			outbox.WithMaxRetries(cfg.Outbox.MaxRetries),
		)
		relay.Start(ctx)
		logger.Info().Msg("消息中继服务已启动")
	}

	if contactService.Queued() && sender != nil {
		startContactConsumers(ctx, cfg, storageManager, sender)
	}

	h := newServer(cfg)
	var limiter *ratelimit.KeyedLimiter
	if cfg.Security.RateLimitPerMinute > 0 {
		limiter = ratelimit.NewKeyedLimiter(cfg.Security.RateLimitPerMinute, cfg.Security.RateLimitBurst, 10*time.Minute)
	}
	router.RegisterRoutes(h, router.Handlers{
		Resume:  handler.NewResumeHandler(analyzer),
		Contact: handler.NewContactHandler(contactService),
		Health:  handler.NewHealthHandler(storageManager.Dependencies(), 2*time.Second),
	}, router.Options{
		AllowOrigins: cfg.Server.AllowOrigins,
		APIKeys:      cfg.Security.APIKeys,
		Limiter:      limiter,
		MetricsPath:  cfg.Server.MetricsPath,
	})
	logger.Info().Msg("HTTP路由注册成功")

	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("HTTP 服务器启动中")
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	if relay != nil {
		relay.Stop()
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ExitWaitTime, 5*time.Second))
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}
	logger.Info().Msg("优雅退出完成")
}

func newScoringEngine(cfg config.ScoringConfig) (*scoring.Engine, error) {
	opts := []scoring.EngineOption{
		scoring.WithEarlyPositionThreshold(cfg.EarlyPositionThreshold),
		scoring.WithTopK(cfg.DefaultTopK),
		scoring.WithFallbackObserver(func(reason error) {
			metrics.RecommendFallbacks.Inc()
			logger.Debug().Err(reason).Msg("岗位推荐降级为固定分")
		}),
	}
	if cfg.TaxonomyFile != "" {
		taxonomy, err := scoring.LoadTaxonomy(cfg.TaxonomyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, scoring.WithTaxonomy(taxonomy))
	}
	if cfg.Embedding.Provider == "remote" {
		emb, err := parser.NewRemoteEmbedder(cfg.Embedding)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("model", emb.Model()).Msg("岗位推荐使用远程向量化")
		opts = append(opts, scoring.WithEmbedder(emb))
	}
	return scoring.NewEngine(opts...), nil
}

func analyzerSettings(cfg *config.Config, s *storage.Storage) []processor.SettingOpt {
	opts := []processor.SettingOpt{
		processor.WithsetMaxFileSize(cfg.Upload.MaxFileSizeBytes()),
		processor.WithsetAllowedExtensions(cfg.Upload.AllowedExtensions),
		processor.WithsetMaxTopK(cfg.Scoring.MaxTopK),
	}
	if s.Redis != nil {
		opts = append(opts,
			processor.WithsetCacheTTL(s.Redis.AnalysisTTL()),
			processor.WithsetLock(s.Redis.LockTTL(), 2*time.Second),
		)
	}
	if s.RabbitMQ != nil {
		opts = append(opts, processor.WithsetEvents(cfg.RabbitMQ.EventsExchange, cfg.RabbitMQ.AnalyzedRoutingKey))
	}
	return opts
}

// newSender 未启用或缺少密码时返回 nil 接口值
func newSender(cfg config.MailConfig) mailer.Sender {
	if !cfg.Enabled {
		logger.Info().Msg("邮件未启用，联系表单不可用")
		return nil
	}
	password, err := mailer.ResolvePassword(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("获取SMTP密码失败，联系表单不可用")
		return nil
	}
	m := mailer.NewSMTPMailer(cfg, password)
	logger.Info().Str("host", cfg.SMTPHost).Int("port", cfg.SMTPPort).Str("to", m.DefaultTo()).Msg("SMTP 邮件发送器初始化成功")
	return m
}

// newContactService 有数据库和队列时走 outbox 异步投递
func newContactService(cfg *config.Config, s *storage.Storage, sender mailer.Sender) *mailer.ContactService {
	var store mailer.ContactStore
	if s.Database != nil {
		store = s.Database
	}
	var queue *mailer.QueueTarget
	// 没有发送器时不入队，否则消息会一直停留在 PENDING
	if sender != nil && s.Database != nil && s.RabbitMQ != nil && cfg.Outbox.Enabled && cfg.RabbitMQ.ContactQueue != "" {
		queue = &mailer.QueueTarget{Exchange: cfg.RabbitMQ.EventsExchange, RoutingKey: cfg.RabbitMQ.ContactRoutingKey}
	}
	return mailer.NewContactService(sender, store, queue)
}

func startContactConsumers(ctx context.Context, cfg *config.Config, s *storage.Storage, sender mailer.Sender) {
	consumer := mailer.NewConsumer(s.Database, sender, cfg.RabbitMQ.MaxRetries,
		config.GetDuration(cfg.RabbitMQ.RetryInterval, 5*time.Second))
	workers := cfg.RabbitMQ.ConsumerWorkers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		if _, err := s.RabbitMQ.StartConsumer(ctx, cfg.RabbitMQ.ContactQueue, cfg.RabbitMQ.PrefetchCount, consumer.Handle); err != nil {
			logger.Error().Err(err).Int("worker", i).Msg("启动联系消息消费者失败")
			return
		}
	}
	logger.Info().Int("workers", workers).Str("queue", cfg.RabbitMQ.ContactQueue).Msg("联系消息消费者已启动")
}

func newServer(cfg *config.Config) *server.Hertz {
	opts := []hconfig.Option{
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithReadTimeout(config.GetDuration(cfg.Server.ReadTimeout, 30*time.Second)),
		server.WithWriteTimeout(config.GetDuration(cfg.Server.WriteTimeout, 60*time.Second)),
		server.WithExitWaitTime(config.GetDuration(cfg.Server.ExitWaitTime, 5*time.Second)),
	}
	if cfg.Server.MaxRequestBodyMB > 0 {
		opts = append(opts, server.WithMaxRequestBodySize(cfg.Server.MaxRequestBodyMB<<20))
	}

	var tracerCfg *hertztracing.Config
	if cfg.Tracing.Enabled {
		tracer, c := hertztracing.NewServerTracer()
		opts = append(opts, tracer)
		tracerCfg = c
	}

	h := server.New(opts...)
	if tracerCfg != nil {
		h.Use(hertztracing.ServerMiddleware(tracerCfg))
	}
	return h
}
