package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"resume-ats-go/internal/scoring"
	"resume-ats-go/internal/storage"
	"resume-ats-go/internal/storage/models"
	"resume-ats-go/internal/types"
	"resume-ats-go/pkg/utils"
)

const sampleResume = `John Smith
john@example.com +1 555 123 4567
Bachelor of Science in Computer Science.
Skilled in Python, React, and AWS. Python Python Python.`

// --- mocks ---

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) Extract(_ context.Context, _ string, _ []byte) (string, error) {
	return s.text, s.err
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetAnalysis(ctx context.Context, fp, sum string) (*types.AnalysisResult, error) {
	args := m.Called(ctx, fp, sum)
	if r, ok := args.Get(0).(*types.AnalysisResult); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCache) SetAnalysis(ctx context.Context, fp, sum string, r *types.AnalysisResult, ttl time.Duration) error {
	return m.Called(ctx, fp, sum, r, ttl).Error(0)
}

func (m *mockCache) AcquireLock(ctx context.Context, key string, exp time.Duration) (string, error) {
	args := m.Called(ctx, key, exp)
	return args.String(0), args.Error(1)
}

func (m *mockCache) ReleaseLock(ctx context.Context, key, val string) (bool, error) {
	args := m.Called(ctx, key, val)
	return args.Bool(0), args.Error(1)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) SaveAnalysis(ctx context.Context, record *models.AnalysisRecord, events ...*models.OutboxMessage) error {
	return m.Called(ctx, record, events).Error(0)
}

type stubArchive struct {
	calls int
	err   error
}

func (s *stubArchive) ArchiveResume(_ context.Context, id, filename string, data []byte) (string, string, error) {
	s.calls++
	if s.err != nil {
		return "", "", s.err
	}
	return "resumes/2024/01/" + id + "/original.pdf", "md5sum", nil
}

func (s *stubArchive) Ping(context.Context) error { return nil }
func (s *stubArchive) Name() string               { return "stub" }

type stubPublisher struct {
	exchange, routingKey string
	bodies               [][]byte
}

func (p *stubPublisher) PublishMessage(_ context.Context, exchange, rk string, msg []byte, _ bool) error {
	p.exchange, p.routingKey = exchange, rk
	p.bodies = append(p.bodies, msg)
	return nil
}

func newAnalyzer(t *testing.T, comps []ComponentOpt, sets ...SettingOpt) *ResumeAnalyzer {
	t.Helper()
	base := []ComponentOpt{WithcompScorer(scoring.NewEngine())}
	a, err := NewResumeAnalyzer(append(base, comps...), sets)
	require.NoError(t, err)
	return a
}

// --- tests ---

func TestNewResumeAnalyzerRequiresComponents(t *testing.T) {
	_, err := NewResumeAnalyzer(nil, nil)
	assert.Error(t, err)

	_, err = NewResumeAnalyzer([]ComponentOpt{WithcompExtractor(&stubExtractor{})}, nil)
	assert.Error(t, err)
}

func TestAnalyzeDocumentWithoutCollaborators(t *testing.T) {
	a := newAnalyzer(t, []ComponentOpt{WithcompExtractor(&stubExtractor{text: sampleResume})})

	res, err := a.AnalyzeDocument(context.Background(), Upload{Filename: "cv.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)

	assert.Len(t, res.AnalysisID, 36)
	assert.False(t, res.Cached)
	assert.Equal(t, []string{"john@example.com"}, res.Entities.Emails)
	assert.Equal(t, 1.0, res.ATSBreakdown.EducationScore)
	assert.Len(t, res.JobRecommendations, 5)
	require.NotEmpty(t, res.SkillsProficiency)
	assert.Equal(t, "python", res.SkillsProficiency[0].Skill)
	assert.Equal(t, 80, res.SkillsProficiency[0].Confidence)
}

func TestAnalyzeDocumentTopK(t *testing.T) {
	a := newAnalyzer(t, []ComponentOpt{WithcompExtractor(&stubExtractor{text: sampleResume})}, WithsetMaxTopK(20))

	res, err := a.AnalyzeDocument(context.Background(), Upload{Filename: "cv.pdf", Data: []byte("x"), TopK: 2})
	require.NoError(t, err)
	assert.Len(t, res.JobRecommendations, 2)

	res, err = a.AnalyzeDocument(context.Background(), Upload{Filename: "cv.pdf", Data: []byte("x"), TopK: 50})
	require.NoError(t, err)
	assert.Len(t, res.JobRecommendations, 8, "不超过岗位总数")
}

func TestAnalyzeDocumentValidation(t *testing.T) {
	a := newAnalyzer(t,
		[]ComponentOpt{WithcompExtractor(&stubExtractor{text: sampleResume})},
		WithsetMaxFileSize(4),
		WithsetAllowedExtensions([]string{"pdf", ".TXT"}),
	)
	ctx := context.Background()

	_, err := a.AnalyzeDocument(ctx, Upload{Filename: "cv.pdf", Data: []byte("12345")})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = a.AnalyzeDocument(ctx, Upload{Filename: "cv.exe", Data: []byte("1")})
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = a.AnalyzeDocument(ctx, Upload{Filename: "cv.txt"})
	assert.ErrorIs(t, err, ErrEmptyUpload)

	_, err = a.AnalyzeDocument(ctx, Upload{Filename: "CV.TXT", Data: []byte("1")})
	assert.NoError(t, err)
}

func TestAnalyzeDocumentNoUsableText(t *testing.T) {
	ctx := context.Background()

	a := newAnalyzer(t, []ComponentOpt{WithcompExtractor(&stubExtractor{err: errors.New("corrupt pdf")})})
	_, err := a.AnalyzeDocument(ctx, Upload{Filename: "cv.pdf", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrNoUsableText)
	assert.Equal(t, "no_text", FailureReason(err))

	a = newAnalyzer(t, []ComponentOpt{WithcompExtractor(&stubExtractor{text: " \n\t "})})
	_, err = a.AnalyzeDocument(ctx, Upload{Filename: "cv.pdf", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrNoUsableText)

	_, err = a.AnalyzeText(ctx, "", 5)
	assert.ErrorIs(t, err, ErrNoUsableText)
}

func TestAnalyzeTextCacheHit(t *testing.T) {
	engine := scoring.NewEngine()
	full := engine.AnalyzeTopK(context.Background(), sampleResume, 20)

	cache := new(mockCache)
	cache.On("GetAnalysis", mock.Anything, engine.Fingerprint(), mock.Anything).Return(full, nil).Once()

	a, err := NewResumeAnalyzer([]ComponentOpt{
		WithcompExtractor(&stubExtractor{}),
		WithcompScorer(engine),
		WithcompCache(cache),
	}, nil)
	require.NoError(t, err)

	res, err := a.AnalyzeText(context.Background(), sampleResume, 3)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Len(t, res.JobRecommendations, 3)
	assert.Len(t, full.JobRecommendations, 8, "缓存中的完整结果不被截断")
	assert.NotEmpty(t, res.AnalysisID)
	cache.AssertExpectations(t)
}

func TestAnalyzeTextCacheMissStoresAndReleasesLock(t *testing.T) {
	cache := new(mockCache)
	cache.On("GetAnalysis", mock.Anything, mock.Anything, mock.Anything).Return(nil, storage.ErrNotFound).Once()
	cache.On("AcquireLock", mock.Anything, mock.Anything, 30*time.Second).Return("owner-1", nil).Once()
	cache.On("SetAnalysis", mock.Anything, mock.Anything, mock.Anything,
		mock.MatchedBy(func(r *types.AnalysisResult) bool { return len(r.JobRecommendations) == 8 }),
		time.Duration(0)).Return(nil).Once()
	cache.On("ReleaseLock", mock.Anything, mock.Anything, "owner-1").Return(true, nil).Once()

	a := newAnalyzer(t, []ComponentOpt{WithcompExtractor(&stubExtractor{}), WithcompCache(cache)})

	res, err := a.AnalyzeText(context.Background(), sampleResume, 0)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Len(t, res.JobRecommendations, 5)
	cache.AssertExpectations(t)
}

func TestAnalyzeTextWaitsForConcurrentComputation(t *testing.T) {
	engine := scoring.NewEngine()
	full := engine.AnalyzeTopK(context.Background(), sampleResume, 20)

	cache := new(mockCache)
	cache.On("GetAnalysis", mock.Anything, mock.Anything, mock.Anything).Return(nil, storage.ErrNotFound).Once()
	cache.On("AcquireLock", mock.Anything, mock.Anything, mock.Anything).Return("", nil).Once()
	cache.On("GetAnalysis", mock.Anything, mock.Anything, mock.Anything).Return(full, nil).Once()

	a, err := NewResumeAnalyzer([]ComponentOpt{
		WithcompExtractor(&stubExtractor{}),
		WithcompScorer(engine),
		WithcompCache(cache),
	}, []SettingOpt{WithsetLock(time.Second, time.Second)})
	require.NoError(t, err)

	res, err := a.AnalyzeText(context.Background(), sampleResume, 5)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	cache.AssertExpectations(t)
}

func TestAnalyzeTextLockErrorStillScores(t *testing.T) {
	cache := new(mockCache)
	cache.On("GetAnalysis", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))
	cache.On("AcquireLock", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("redis down"))
	cache.On("SetAnalysis", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	a := newAnalyzer(t, []ComponentOpt{WithcompExtractor(&stubExtractor{}), WithcompCache(cache)})
	res, err := a.AnalyzeText(context.Background(), sampleResume, 5)
	require.NoError(t, err)
	assert.Greater(t, res.OverallScore, 0)
	cache.AssertNotCalled(t, "ReleaseLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyzeDocumentRecordsAuditAndOutbox(t *testing.T) {
	archive := &stubArchive{}
	recorder := new(mockRecorder)
	recorder.On("SaveAnalysis", mock.Anything,
		mock.MatchedBy(func(r *models.AnalysisRecord) bool {
			return r.Source == models.SourceUpload &&
				r.ArchiveBackend == "stub" &&
				r.RawFileMD5 == "md5sum" &&
				r.OriginalFilename == "cv.pdf" &&
				len(r.TextMD5) == 32
		}),
		mock.MatchedBy(func(events []*models.OutboxMessage) bool {
			if len(events) != 1 {
				return false
			}
			var ev AnalyzedEvent
			if err := json.Unmarshal(events[0].Payload, &ev); err != nil {
				return false
			}
			return events[0].EventType == "resume.analyzed" && ev.ArchiveKey != "" && ev.TopRole != ""
		}),
	).Return(nil).Once()

	publisher := &stubPublisher{}
	a := newAnalyzer(t, []ComponentOpt{
		WithcompExtractor(&stubExtractor{text: sampleResume}),
		WithcompArchive(archive),
		WithcompRecorder(recorder),
		WithcompPublisher(publisher),
	}, WithsetEvents("ats.events.exchange", "resume.analyzed"))

	_, err := a.AnalyzeDocument(context.Background(), Upload{Filename: "cv.pdf", Data: []byte("%PDF-1.4")})
	require.NoError(t, err)
	assert.Equal(t, 1, archive.calls)
	assert.Empty(t, publisher.bodies, "有数据库时通过 outbox 发布")
	recorder.AssertExpectations(t)
}

func TestAnalyzeDocumentPublishesDirectlyWithoutDatabase(t *testing.T) {
	archive := &stubArchive{err: errors.New("bucket missing")}
	publisher := &stubPublisher{}
	a := newAnalyzer(t, []ComponentOpt{
		WithcompExtractor(&stubExtractor{text: sampleResume}),
		WithcompArchive(archive),
		WithcompPublisher(publisher),
	}, WithsetEvents("ats.events.exchange", "resume.analyzed"))

	res, err := a.AnalyzeDocument(context.Background(), Upload{Filename: "cv.pdf", Data: []byte("%PDF")})
	require.NoError(t, err, "归档失败不影响分析结果")

	require.Len(t, publisher.bodies, 1)
	assert.Equal(t, "ats.events.exchange", publisher.exchange)
	var ev AnalyzedEvent
	require.NoError(t, json.Unmarshal(publisher.bodies[0], &ev))
	assert.Equal(t, res.AnalysisID, ev.AnalysisID)
	assert.Equal(t, res.OverallScore, ev.OverallScore)
	assert.Empty(t, ev.ArchiveKey)
}

func TestWithcompStorageSkipsNilMembers(t *testing.T) {
	var c Components
	WithcompStorage(&storage.Storage{})(&c)
	assert.Nil(t, c.Cache)
	assert.Nil(t, c.Recorder)
	assert.Nil(t, c.Publisher)
	assert.Nil(t, c.Archive)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "", FailureReason(nil))
	assert.Equal(t, "too_large", FailureReason(newSizeError("a", 2, 1)))
	assert.Equal(t, "unsupported", FailureReason(newTypeError("a", ".exe")))
	assert.Equal(t, "internal", FailureReason(errors.New("x")))
}

func TestScoreErrorKeepsCause(t *testing.T) {
	err := newScoreError("cv.pdf", ErrNoUsableText)
	assert.ErrorIs(t, err, ErrNoUsableText)
	assert.Equal(t, "no_text", FailureReason(err))

	var aerr *AnalysisError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "score", aerr.Op)
	assert.Equal(t, "cv.pdf", aerr.Filename)

	// 非预期的评分错误不能被当成客户端错误
	err = newScoreError("cv.pdf", context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrNoUsableText)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "internal", FailureReason(err))
}

func TestAnalyzeDocumentBlankTextIsScoreError(t *testing.T) {
	a := newAnalyzer(t, []ComponentOpt{WithcompExtractor(&stubExtractor{text: " \n\t "})})
	_, err := a.AnalyzeDocument(context.Background(), Upload{Filename: "cv.pdf", Data: []byte("x")})

	var aerr *AnalysisError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "score", aerr.Op)
	assert.ErrorIs(t, err, ErrNoUsableText)
}

func TestCacheKeyUsesRawText(t *testing.T) {
	engine := scoring.NewEngine()
	flat := scoring.Normalize(sampleResume)
	require.NotEqual(t, utils.TextMD5(sampleResume), utils.TextMD5(flat))

	full := engine.AnalyzeTopK(context.Background(), sampleResume, 20)
	cache := new(mockCache)
	cache.On("GetAnalysis", mock.Anything, engine.Fingerprint(), utils.TextMD5(sampleResume)).Return(full, nil).Once()
	cache.On("GetAnalysis", mock.Anything, engine.Fingerprint(), utils.TextMD5(flat)).Return(full, nil).Once()

	a := newAnalyzer(t, []ComponentOpt{WithcompExtractor(&stubExtractor{}), WithcompCache(cache)})
	_, err := a.AnalyzeText(context.Background(), sampleResume, 5)
	require.NoError(t, err)
	_, err = a.AnalyzeText(context.Background(), flat, 5)
	require.NoError(t, err)

	// 排版不同的同一内容各自占一条缓存
	cache.AssertExpectations(t)
}
