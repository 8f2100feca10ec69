package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"resume-ats-go/internal/logger"
)

// ErrBlankText 提取成功但没有可用文本
var ErrBlankText = errors.New("extracted text is blank")

// TextExtractor 文档文本提取器
// 返回: 提取的文本内容, 解析器元数据, 错误
type TextExtractor interface {
	ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error)
}

// Kind 按扩展名划分的文档类型
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
	KindText Kind = "txt"
)

// KindOf 根据文件名扩展名判断文档类型；未知扩展名按PDF处理
func KindOf(filename string) Kind {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx", ".doc":
		return KindDOCX
	case ".txt":
		return KindText
	default:
		return KindPDF
	}
}

// Registry 按扩展名分发到具体的提取器
type Registry struct {
	extractors map[Kind]TextExtractor
}

// RegistryOption 注册表选项
type RegistryOption func(*Registry)

// WithExtractor 替换某类文档的提取器
func WithExtractor(kind Kind, ex TextExtractor) RegistryOption {
	return func(r *Registry) {
		if ex != nil {
			r.extractors[kind] = ex
		}
	}
}

// NewRegistry 创建默认注册表：PDF 先用 eino 解析，失败或为空时回退到 ledongthuc/pdf
func NewRegistry(ctx context.Context, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{extractors: make(map[Kind]TextExtractor, 3)}
	for _, opt := range opts {
		opt(r)
	}

	if _, ok := r.extractors[KindPDF]; !ok {
		eino, err := NewEinoPDFTextExtractor(ctx)
		if err != nil {
			return nil, err
		}
		r.extractors[KindPDF] = NewFallbackExtractor(eino, NewPlainPDFExtractor())
	}
	if _, ok := r.extractors[KindDOCX]; !ok {
		r.extractors[KindDOCX] = NewDocxExtractor()
	}
	if _, ok := r.extractors[KindText]; !ok {
		r.extractors[KindText] = NewPlainTextExtractor()
	}
	return r, nil
}

// Extract 提取上传文件的文本
func (r *Registry) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	kind := KindOf(filename)
	ex, ok := r.extractors[kind]
	if !ok {
		return "", fmt.Errorf("no extractor registered for %s", kind)
	}
	text, meta, err := ex.ExtractTextFromBytes(ctx, data, filename)
	if err != nil {
		return "", fmt.Errorf("extract %s text: %w", kind, err)
	}
	logger.Ctx(ctx).Debug().
		Str("kind", string(kind)).
		Int("text_length", len(text)).
		Interface("extractor", meta["extractor"]).
		Msg("文档文本提取完成")
	return text, nil
}

// FallbackExtractor 依次尝试多个提取器，返回第一个非空结果
type FallbackExtractor struct {
	chain []TextExtractor
}

// NewFallbackExtractor 创建回退链
func NewFallbackExtractor(chain ...TextExtractor) *FallbackExtractor {
	return &FallbackExtractor{chain: chain}
}

// ExtractTextFromBytes 实现 TextExtractor
func (f *FallbackExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error) {
	var errs []error
	for i, ex := range f.chain {
		text, meta, err := ex.ExtractTextFromBytes(ctx, data, uri)
		if err == nil && strings.TrimSpace(text) != "" {
			if i > 0 {
				logger.Ctx(ctx).Info().Int("attempt", i+1).Str("uri", uri).Msg("主解析器失败，已使用备用解析器")
			}
			return text, meta, nil
		}
		if err == nil {
			err = ErrBlankText
		}
		errs = append(errs, err)
		logger.Ctx(ctx).Warn().Err(err).Int("attempt", i+1).Str("uri", uri).Msg("文本提取失败，尝试下一个解析器")
	}
	if len(errs) == 0 {
		return "", nil, errors.New("no extractor configured")
	}
	return "", nil, errors.Join(errs...)
}
