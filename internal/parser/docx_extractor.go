package parser

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	xmlTagPattern      = regexp.MustCompile(`<[^>]+>`)
	inlineSpacePattern = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// DocxExtractor 从 word/document.xml 中提取段落文本，每个段落一行
type DocxExtractor struct{}

// NewDocxExtractor 创建DOCX提取器
func NewDocxExtractor() *DocxExtractor {
	return &DocxExtractor{}
}

// ExtractTextFromBytes 实现 TextExtractor
func (d *DocxExtractor) ExtractTextFromBytes(_ context.Context, data []byte, uri string) (string, map[string]interface{}, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse docx %s: %w", uri, err)
	}
	defer doc.Close()

	text := docxXMLToText(doc.Editable().GetContent())
	return text, map[string]interface{}{
		"extractor":   "docx",
		"text_length": len(text),
	}, nil
}

// docxXMLToText 段落结束转换为换行，制表符保留，其余标签删除，并反转义XML实体
func docxXMLToText(xml string) string {
	xml = strings.ReplaceAll(xml, "</w:p>", "\n")
	xml = strings.ReplaceAll(xml, "<w:tab/>", "\t")
	xml = strings.ReplaceAll(xml, "<w:br/>", "\n")
	txt := xmlTagPattern.ReplaceAllString(xml, "")
	txt = html.UnescapeString(txt)

	lines := strings.Split(txt, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(inlineSpacePattern.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
