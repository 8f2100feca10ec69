package parser

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"
)

// PlainTextExtractor 按 UTF-8 读取纯文本，非法字节替换为 U+FFFD
type PlainTextExtractor struct{}

// NewPlainTextExtractor 创建纯文本提取器
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

// ExtractTextFromBytes 实现 TextExtractor
func (p *PlainTextExtractor) ExtractTextFromBytes(_ context.Context, data []byte, _ string) (string, map[string]interface{}, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	valid := utf8.Valid(data)
	text := string(data)
	if !valid {
		text = strings.ToValidUTF8(text, "�")
	}
	return text, map[string]interface{}{
		"extractor":   "text",
		"valid_utf8":  valid,
		"text_length": len(text),
	}, nil
}
