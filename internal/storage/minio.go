package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"

	"resume-ats-go/internal/config"
	"resume-ats-go/internal/logger"
)

// MinIO 原始简历文件的对象存储
type MinIO struct {
	client    *minio.Client
	cfg       *config.MinIOConfig
	bucket    string
	keyPrefix string
	log       zerolog.Logger
}

// NewMinIO 创建MinIO客户端，确保存储桶存在并设置过期规则
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig, keyPrefix string) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.Endpoint == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("MinIO endpoint 和 bucketName 不能为空")
	}
	l := logger.Logger.With().Str("component", "minio").Str("bucket", cfg.BucketName).Logger()

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:    client,
		cfg:       cfg,
		bucket:    cfg.BucketName,
		keyPrefix: keyPrefix,
		log:       l,
	}

	if err := m.ensureBucketExists(ctx, cfg.Location); err != nil {
		return nil, err
	}

	if cfg.OriginalFileExpireDays > 0 {
		// 规则设置失败不影响归档
		if err := m.setupLifecycle(ctx, "expire-originals", cfg.OriginalFileExpireDays); err != nil {
			l.Warn().Err(err).Msg("设置存储桶生命周期规则失败")
		}
	}

	l.Info().Str("endpoint", cfg.Endpoint).Msg("MinIO客户端初始化成功")
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, location string) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", m.bucket, err)
	}
	m.log.Info().Msg("存储桶已创建")
	return nil
}

// setupLifecycle 为存储桶设置过期规则
func (m *MinIO) setupLifecycle(ctx context.Context, ruleID string, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	if err := m.client.SetBucketLifecycle(ctx, m.bucket, cfg); err != nil {
		return err
	}
	m.log.Debug().Str("rule", ruleID).Int("expiry_days", expiryDays).Msg("生命周期规则已设置")
	return nil
}

// ArchiveResume 上传原始简历文件
func (m *MinIO) ArchiveResume(ctx context.Context, analysisID, filename string, data []byte) (string, string, error) {
	key := ArchiveObjectKey(m.keyPrefix, analysisID, filename, time.Now())
	sum := md5Hex(data)
	info, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: getContentType(filepath.Ext(filename)),
		UserMetadata: map[string]string{
			"analysis-id": analysisID,
			"raw-md5":     sum,
		},
	})
	if err != nil {
		return "", "", archiveError(m.Name(), key, err)
	}
	m.log.Debug().Str("key", key).Str("etag", info.ETag).Int64("size", info.Size).Msg("简历文件已归档")
	return key, sum, nil
}

// Ping 检查存储桶可访问
func (m *MinIO) Ping(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("存储桶 %s 不存在", m.bucket)
	}
	return nil
}

// Name 后端名称
func (m *MinIO) Name() string { return "minio" }
