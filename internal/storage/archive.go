package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ObjectArchive 原始上传文件归档
type ObjectArchive interface {
	// ArchiveResume 保存原始文件，返回对象键和文件MD5
	ArchiveResume(ctx context.Context, analysisID, filename string, data []byte) (objectKey string, md5Hex string, err error)
	// Ping 检查存储桶可访问
	Ping(ctx context.Context) error
	// Name 后端名称，用于日志和就绪检查
	Name() string
}

var (
	_ ObjectArchive = (*MinIO)(nil)
	_ ObjectArchive = (*S3Archive)(nil)
)

// ArchiveObjectKey 构建归档对象键，例如 resumes/2024/05/{analysisID}/original.pdf
func ArchiveObjectKey(prefix, analysisID, filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "resumes"
	}
	return path.Join(prefix, now.UTC().Format("2006/01"), analysisID, "original"+ext)
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// 获取内容类型
func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func archiveError(backend, key string, err error) error {
	return fmt.Errorf("%s 归档对象 %s 失败: %w", backend, key, err)
}
