package storage

import (
	"context"
	"fmt"

	"resume-ats-go/internal/config"
	"resume-ats-go/internal/logger"
)

// Storage 存储管理器，聚合所有可选的外部依赖。
// 每个字段为 nil 表示未配置或初始化失败，调用方需要按需降级。
type Storage struct {
	// 分析结果缓存
	Redis *Redis

	// 原始文件归档 (MinIO 或 S3)
	Archive ObjectArchive

	// 审计记录、联系消息与 outbox
	Database *Database

	// 事件发布与联系消息消费
	RabbitMQ *RabbitMQ
}

// NewStorage 创建存储管理器。
// 单个组件初始化失败只记录警告，不影响其他组件和服务启动。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{}
	var err error

	if cfg.Redis.Enabled {
		s.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化Redis失败，分析结果不缓存")
		}
	} else {
		logger.Info().Msg("Redis未启用, 跳过初始化")
	}

	switch cfg.Archive.Backend {
	case "minio":
		var m *MinIO
		if m, err = NewMinIO(ctx, &cfg.MinIO, cfg.Archive.KeyPrefix); err != nil {
			logger.Warn().Err(err).Msg("初始化MinIO失败，上传文件不归档")
		} else {
			s.Archive = m
		}
	case "s3":
		var a *S3Archive
		if a, err = NewS3Archive(ctx, &cfg.S3, cfg.Archive.KeyPrefix); err != nil {
			logger.Warn().Err(err).Msg("初始化S3失败，上传文件不归档")
		} else {
			s.Archive = a
		}
	}

	if cfg.Database.Enabled {
		s.Database, err = NewDatabase(&cfg.Database)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化数据库失败，不写入审计记录")
		}
	}

	if cfg.RabbitMQ.Enabled {
		s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化RabbitMQ失败，事件不发布")
		} else if err := s.RabbitMQ.SetupTopology(); err != nil {
			logger.Warn().Err(err).Msg("声明RabbitMQ拓扑失败")
		}
	}

	return s, nil
}

// Pinger 依赖健康检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies 返回已初始化的组件，键为就绪检查中显示的名称
func (s *Storage) Dependencies() map[string]Pinger {
	deps := make(map[string]Pinger)
	if s == nil {
		return deps
	}
	if s.Redis != nil {
		deps["redis"] = s.Redis
	}
	if s.Archive != nil {
		deps[s.Archive.Name()] = s.Archive
	}
	if s.Database != nil {
		deps["database"] = s.Database
	}
	if s.RabbitMQ != nil {
		deps["rabbitmq"] = s.RabbitMQ
	}
	return deps
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s == nil {
		return
	}
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Database != nil {
		if err := s.Database.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭数据库连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
}
