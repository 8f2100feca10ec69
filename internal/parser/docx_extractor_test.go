package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p><w:r><w:t>Jane Doe</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>Skills:</w:t></w:r><w:r><w:tab/><w:t>Go &amp; Python</w:t></w:r></w:p>` +
	`<w:p></w:p>` +
	`<w:p><w:r><w:t xml:space="preserve">  jane@example.com  </w:t></w:r></w:p>` +
	`</w:body></w:document>`

const testRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

// buildDocx 在内存中构造最小可读的 docx 包
func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"word/document.xml":            documentXML,
		"word/_rels/document.xml.rels": testRelsXML,
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDocxExtractor(t *testing.T) {
	data := buildDocx(t, testDocumentXML)

	text, meta, err := NewDocxExtractor().ExtractTextFromBytes(context.Background(), data, "cv.docx")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\nSkills: Go & Python\njane@example.com", text)
	assert.Equal(t, "docx", meta["extractor"])
}

func TestDocxExtractorRejectsGarbage(t *testing.T) {
	_, _, err := NewDocxExtractor().ExtractTextFromBytes(context.Background(), []byte("plain text"), "cv.docx")
	assert.Error(t, err)
}

func TestDocxXMLToText(t *testing.T) {
	assert.Equal(t, "a\nb", docxXMLToText("<w:p>a</w:p><w:p>b<w:br/></w:p>"))
	assert.Equal(t, "", docxXMLToText("<w:p></w:p>"))
	assert.Equal(t, `x < y "q"`, docxXMLToText("<w:t>x &lt; y &quot;q&quot;</w:t>"))
}
