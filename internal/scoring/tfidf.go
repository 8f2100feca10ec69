package scoring

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
)

var (
	// ErrEmptyVocabulary 语料在去除停用词后没有任何词项
	ErrEmptyVocabulary = errors.New("tfidf: empty vocabulary")

	// tokenPattern 等价于 (?u)\b\w\w+\b：连续两个及以上的词字符
	tokenPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]{2,}`)
)

// TFIDFEmbedder 实现 eino embedding.Embedder。
// 每次调用都在传入的文本集合上重新拟合词表，返回 L2 归一化的稠密向量，
// 因此任意两行向量的点积即余弦相似度。
//
// 参数语义对齐 scikit-learn TfidfVectorizer 的默认值：
// 小写化、英文停用词、原始词频、smooth_idf、norm="l2"。
type TFIDFEmbedder struct {
	stopWords map[string]struct{}
}

var _ embedding.Embedder = (*TFIDFEmbedder)(nil)

// NewTFIDFEmbedder 创建使用英文停用词表的向量化器
func NewTFIDFEmbedder() *TFIDFEmbedder {
	return &TFIDFEmbedder{stopWords: englishStopWords}
}

// EmbedStrings 拟合并转换 texts
func (e *TFIDFEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs := make([]map[string]int, len(texts))
	df := make(map[string]int)
	for i, t := range texts {
		counts := e.termCounts(t)
		docs[i] = counts
		for term := range counts {
			df[term]++
		}
	}
	if len(df) == 0 {
		return nil, ErrEmptyVocabulary
	}

	vocab := make([]string, 0, len(df))
	for term := range df {
		vocab = append(vocab, term)
	}
	sort.Strings(vocab)
	index := make(map[string]int, len(vocab))
	for i, term := range vocab {
		index[term] = i
	}

	n := float64(len(texts))
	idf := make([]float64, len(vocab))
	for i, term := range vocab {
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	vectors := make([][]float64, len(texts))
	for i, counts := range docs {
		vec := make([]float64, len(vocab))
		for term, c := range counts {
			j := index[term]
			vec[j] = float64(c) * idf[j]
		}
		l2Normalize(vec)
		vectors[i] = vec
	}
	return vectors, nil
}

// GetDimensions 词表随输入变化，没有固定维度
func (e *TFIDFEmbedder) GetDimensions() int {
	return 0
}

func (e *TFIDFEmbedder) termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := e.stopWords[tok]; stop {
			continue
		}
		counts[tok]++
	}
	return counts
}

func l2Normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// dot 两个等长向量的点积
func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		if i >= len(b) {
			break
		}
		s += a[i] * b[i]
	}
	return s
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
