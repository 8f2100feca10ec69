package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PlainPDFExtractor 基于 ledongthuc/pdf 的逐页纯文本提取，作为 eino 解析失败时的备用
type PlainPDFExtractor struct{}

// NewPlainPDFExtractor 创建备用PDF提取器
func NewPlainPDFExtractor() *PlainPDFExtractor {
	return &PlainPDFExtractor{}
}

// ExtractTextFromBytes 实现 TextExtractor。单页提取失败时跳过该页
func (p *PlainPDFExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (text string, meta map[string]interface{}, err error) {
	// ledongthuc/pdf 遇到损坏文件可能直接panic
	defer func() {
		if r := recover(); r != nil {
			text, meta, err = "", nil, fmt.Errorf("pdf reader panic for %s: %v", uri, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read pdf %s: %w", uri, err)
	}

	var b strings.Builder
	pages, skipped := r.NumPage(), 0
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			skipped++
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			skipped++
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}

	text = strings.TrimSpace(b.String())
	meta = map[string]interface{}{
		"extractor":     "ledongthuc_pdf",
		"page_count":    pages,
		"skipped_pages": skipped,
		"text_length":   len(text),
	}
	return text, meta, nil
}
