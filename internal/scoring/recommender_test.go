package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-ats-go/internal/types"
)

type failingEmbedder struct{ err error }

func (f failingEmbedder) EmbedStrings(context.Context, []string, ...embedding.Option) ([][]float64, error) {
	return nil, f.err
}

type panickingEmbedder struct{}

func (panickingEmbedder) EmbedStrings(context.Context, []string, ...embedding.Option) ([][]float64, error) {
	panic("boom")
}

func TestRecommendJobsEmptyResumeFallsBack(t *testing.T) {
	r := NewRecommender(nil, nil)
	got := r.RecommendJobs(context.Background(), "", nil, 5)

	require.Len(t, got, 5)
	for i, rec := range got {
		assert.Equal(t, DefaultRoles[i], rec.Role, "降级结果保持输入顺序")
		assert.Equal(t, FallbackScore, rec.Score)
	}
}

func TestRankEmptyResumeReportsReason(t *testing.T) {
	r := NewRecommender(nil, nil)
	_, err := r.Rank(context.Background(), "   ", nil, 5)
	assert.ErrorIs(t, err, ErrNoIndexableTerms)

	_, err = r.Rank(context.Background(), "the and of", []string{"the", "of"}, 5)
	assert.ErrorIs(t, err, ErrEmptyVocabulary)
}

func TestRecommendJobsRanksBySimilarity(t *testing.T) {
	r := NewRecommender(nil, nil)
	got := r.RecommendJobs(context.Background(),
		"backend developer golang services backend",
		[]string{"Data Analyst", "Backend Developer"}, 5)

	want := []types.JobRecommendation{
		{Role: "Backend Developer", Score: 73},
		{Role: "Data Analyst", Score: 0},
	}
	assert.Equal(t, want, got)
}

func TestRecommendJobsTiesKeepInputOrder(t *testing.T) {
	r := NewRecommender(nil, nil)
	got := r.RecommendJobs(context.Background(), "zebra", []string{"Data Analyst", "Backend Developer"}, 5)

	require.Len(t, got, 2)
	assert.Equal(t, "Data Analyst", got[0].Role)
	assert.Equal(t, "Backend Developer", got[1].Role)
	assert.Equal(t, 0, got[0].Score)
}

func TestRecommendJobsTopK(t *testing.T) {
	r := NewRecommender(nil, nil)
	text := "machine learning engineer with data science background, python and deep learning"

	assert.Len(t, r.RecommendJobs(context.Background(), text, nil, 2), 2)
	assert.Len(t, r.RecommendJobs(context.Background(), text, nil, 0), DefaultTopK, "topK<=0 使用默认值")
	assert.Len(t, r.RecommendJobs(context.Background(), text, nil, 50), len(DefaultRoles))
	assert.Len(t, r.RecommendJobs(context.Background(), "", []string{"A role", "B role"}, 5), 2)

	for _, rec := range r.RecommendJobs(context.Background(), text, nil, 8) {
		assert.GreaterOrEqual(t, rec.Score, 0)
		assert.LessOrEqual(t, rec.Score, 100)
	}
	top := r.RecommendJobs(context.Background(), text, nil, 1)
	assert.Equal(t, "Machine Learning Engineer", top[0].Role)
}

func TestRecommendJobsNeverFails(t *testing.T) {
	tests := []struct {
		name string
		emb  embedding.Embedder
	}{
		{"向量化出错", failingEmbedder{err: errors.New("backend down")}},
		{"向量化panic", panickingEmbedder{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecommender(tt.emb, []string{"A", "B", "C"})

			_, err := r.Rank(context.Background(), "text", nil, 2)
			assert.Error(t, err)

			got := r.RecommendJobs(context.Background(), "text", nil, 2)
			assert.Equal(t, []types.JobRecommendation{{Role: "A", Score: 50}, {Role: "B", Score: 50}}, got)
		})
	}
}
