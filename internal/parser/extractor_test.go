package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExtractor struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubExtractor) ExtractTextFromBytes(_ context.Context, _ []byte, _ string) (string, map[string]interface{}, error) {
	s.calls++
	if s.err != nil {
		return "", nil, s.err
	}
	return s.text, map[string]interface{}{"extractor": s.name}, nil
}

func TestKindOf(t *testing.T) {
	tests := map[string]Kind{
		"cv.pdf":         KindPDF,
		"CV.PDF":         KindPDF,
		"resume.docx":    KindDOCX,
		"resume.DOC":     KindDOCX,
		"notes.txt":      KindText,
		"scan.png":       KindPDF,
		"no-extension":   KindPDF,
		"archive.tar.gz": KindPDF,
	}
	for name, want := range tests {
		assert.Equal(t, want, KindOf(name), name)
	}
}

func TestRegistryDispatch(t *testing.T) {
	pdfEx := &stubExtractor{name: "pdf", text: "from pdf"}
	docxEx := &stubExtractor{name: "docx", text: "from docx"}
	txtEx := &stubExtractor{name: "txt", text: "from txt"}

	r, err := NewRegistry(context.Background(),
		WithExtractor(KindPDF, pdfEx),
		WithExtractor(KindDOCX, docxEx),
		WithExtractor(KindText, txtEx),
	)
	require.NoError(t, err)

	tests := []struct {
		filename string
		want     string
	}{
		{"a.pdf", "from pdf"},
		{"a.docx", "from docx"},
		{"a.doc", "from docx"},
		{"a.txt", "from txt"},
		{"a.rtf", "from pdf"},
	}
	for _, tt := range tests {
		got, err := r.Extract(context.Background(), tt.filename, []byte("data"))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.filename)
	}
	assert.Equal(t, 2, pdfEx.calls, "未知扩展名回退到PDF")
}

func TestRegistryWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	r, err := NewRegistry(context.Background(), WithExtractor(KindText, &stubExtractor{err: boom}))
	require.NoError(t, err)

	_, err = r.Extract(context.Background(), "a.txt", nil)
	assert.ErrorIs(t, err, boom)
}

func TestRegistryDefaultsAreWired(t *testing.T) {
	r, err := NewRegistry(context.Background())
	require.NoError(t, err)

	assert.IsType(t, &FallbackExtractor{}, r.extractors[KindPDF])
	assert.IsType(t, &DocxExtractor{}, r.extractors[KindDOCX])
	assert.IsType(t, &PlainTextExtractor{}, r.extractors[KindText])

	got, err := r.Extract(context.Background(), "cv.txt", []byte("Go developer\n"))
	require.NoError(t, err)
	assert.Equal(t, "Go developer\n", got)
}

func TestFallbackExtractor(t *testing.T) {
	ctx := context.Background()

	t.Run("主解析器成功", func(t *testing.T) {
		primary := &stubExtractor{name: "a", text: "hello"}
		backup := &stubExtractor{name: "b", text: "backup"}
		text, meta, err := NewFallbackExtractor(primary, backup).ExtractTextFromBytes(ctx, nil, "x.pdf")
		require.NoError(t, err)
		assert.Equal(t, "hello", text)
		assert.Equal(t, "a", meta["extractor"])
		assert.Equal(t, 0, backup.calls)
	})

	t.Run("主解析器返回空白时回退", func(t *testing.T) {
		primary := &stubExtractor{name: "a", text: "  \n "}
		backup := &stubExtractor{name: "b", text: "backup"}
		text, _, err := NewFallbackExtractor(primary, backup).ExtractTextFromBytes(ctx, nil, "x.pdf")
		require.NoError(t, err)
		assert.Equal(t, "backup", text)
	})

	t.Run("全部失败", func(t *testing.T) {
		e1, e2 := errors.New("e1"), errors.New("e2")
		_, _, err := NewFallbackExtractor(&stubExtractor{err: e1}, &stubExtractor{err: e2}).ExtractTextFromBytes(ctx, nil, "x.pdf")
		assert.ErrorIs(t, err, e1)
		assert.ErrorIs(t, err, e2)

		_, _, err = NewFallbackExtractor(&stubExtractor{text: ""}).ExtractTextFromBytes(ctx, nil, "x.pdf")
		assert.ErrorIs(t, err, ErrBlankText)
	})
}
