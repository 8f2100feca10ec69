package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrNoUsableText    = errors.New("could not extract resume text")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrEmptyUpload     = errors.New("empty upload")
)

// AnalysisError 带有操作和文件信息的分析错误
type AnalysisError struct {
	Filename string
	Op       string
	BaseErr  error
	Detail   string
}

func (e *AnalysisError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 文件:%s): %s", e.BaseErr, e.Op, e.Filename, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 文件:%s)", e.BaseErr, e.Op, e.Filename)
}

func (e *AnalysisError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *AnalysisError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func newExtractError(filename, detail string) error {
	return &AnalysisError{Filename: filename, Op: "extract", BaseErr: ErrNoUsableText, Detail: detail}
}

// newScoreError 保留评分错误链，分类交给 FailureReason
func newScoreError(filename string, err error) error {
	return &AnalysisError{Filename: filename, Op: "score", BaseErr: err}
}

func newSizeError(filename string, size, limit int64) error {
	return &AnalysisError{
		Filename: filename,
		Op:       "validate",
		BaseErr:  ErrFileTooLarge,
		Detail:   fmt.Sprintf("%d bytes > %d bytes", size, limit),
	}
}

func newTypeError(filename, ext string) error {
	return &AnalysisError{Filename: filename, Op: "validate", BaseErr: ErrUnsupportedFile, Detail: ext}
}

// FailureReason 错误分类，用于指标标签
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, ErrUnsupportedFile):
		return "unsupported"
	case errors.Is(err, ErrEmptyUpload):
		return "empty"
	case errors.Is(err, ErrNoUsableText):
		return "no_text"
	default:
		return "internal"
	}
}
