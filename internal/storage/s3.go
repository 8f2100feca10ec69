package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"resume-ats-go/internal/config"
	"resume-ats-go/internal/logger"
)

// S3Archive S3 / R2 兼容的归档后端
type S3Archive struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	log       zerolog.Logger
}

// NewS3Archive 创建S3客户端。未配置访问密钥时使用默认凭证链
func NewS3Archive(ctx context.Context, cfg *config.S3Config, keyPrefix string) (*S3Archive, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket 不能为空")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("加载AWS配置失败: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	a := &S3Archive{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: keyPrefix,
		log:       logger.Logger.With().Str("component", "s3").Str("bucket", cfg.Bucket).Logger(),
	}
	if err := a.Ping(ctx); err != nil {
		return nil, fmt.Errorf("访问S3存储桶 %s 失败: %w", cfg.Bucket, err)
	}
	a.log.Info().Str("endpoint", cfg.Endpoint).Msg("S3客户端初始化成功")
	return a, nil
}

// ArchiveResume 上传原始简历文件
func (a *S3Archive) ArchiveResume(ctx context.Context, analysisID, filename string, data []byte) (string, string, error) {
	key := ArchiveObjectKey(a.keyPrefix, analysisID, filename, time.Now())
	sum := md5Hex(data)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(getContentType(filepath.Ext(filename))),
		Metadata: map[string]string{
			"analysis-id": analysisID,
			"raw-md5":     sum,
		},
	})
	if err != nil {
		return "", "", archiveError(a.Name(), key, err)
	}
	a.log.Debug().Str("key", key).Int("size", len(data)).Msg("简历文件已归档")
	return key, sum, nil
}

// Ping 检查存储桶可访问
func (a *S3Archive) Ping(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	return err
}

// Name 后端名称
func (a *S3Archive) Name() string { return "s3" }
