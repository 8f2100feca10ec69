package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainTextExtractor(t *testing.T) {
	ex := NewPlainTextExtractor()

	text, meta, err := ex.ExtractTextFromBytes(context.Background(), []byte("\xef\xbb\xbfhello\nworld"), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", text, "去掉BOM")
	assert.Equal(t, true, meta["valid_utf8"])

	text, meta, err = ex.ExtractTextFromBytes(context.Background(), []byte("caf\xe9"), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "caf�", text)
	assert.Equal(t, false, meta["valid_utf8"])
}
