package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-ats-go/internal/config"
	"resume-ats-go/internal/types"
)

func TestAnalysisKeys(t *testing.T) {
	assert.Equal(t, "app:analysis:result:fp:abc", AnalysisKey("fp", "abc"))
	assert.Equal(t, "app:analysis:lock:fp:abc", AnalysisLockKey("fp", "abc"))
}

func TestRedisTTLDefaults(t *testing.T) {
	r := &Redis{}
	assert.Equal(t, defaultAnalysisTTL, r.AnalysisTTL())
	assert.Equal(t, defaultLockTTL, r.LockTTL())

	r = &Redis{config: &config.RedisConfig{AnalysisTTL: "1h", LockTTL: "bogus"}}
	assert.Equal(t, time.Hour, r.AnalysisTTL())
	assert.Equal(t, defaultLockTTL, r.LockTTL())
}

func TestRedisUninitializedClient(t *testing.T) {
	r := &Redis{}
	ctx := context.Background()

	_, err := r.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, r.Ping(ctx))
	_, err = r.AcquireLock(ctx, "k", time.Second)
	assert.Error(t, err)
	assert.NoError(t, r.Close())
}

// newTestRedis 连接 ATS_TEST_REDIS_ADDR 指定的实例，未设置时跳过
func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	if testing.Short() {
		t.Skip("short 模式跳过 Redis 集成测试")
	}
	addr := os.Getenv("ATS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("未设置 ATS_TEST_REDIS_ADDR，跳过 Redis 集成测试")
	}
	r, err := NewRedisAdapter(&config.RedisConfig{Address: addr, DB: 15, DialTimeoutSeconds: 2})
	if err != nil {
		t.Skipf("Redis 不可用: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedisAnalysisCacheRoundTrip(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	fp, sum := "test-fp", "d41d8cd98f00b204e9800998ecf8427e"
	t.Cleanup(func() { r.Client.Del(ctx, AnalysisKey(fp, sum)) })

	_, err := r.GetAnalysis(ctx, fp, sum)
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))

	in := &types.AnalysisResult{
		AnalysisID:   "per-request",
		OverallScore: 69,
		Cached:       true,
		SkillsProficiency: []types.SkillMatch{
			{Skill: "python", Confidence: 80, Count: 4},
		},
		Entities: types.NewEntitySet(),
	}
	require.NoError(t, r.SetAnalysis(ctx, fp, sum, in, time.Minute))

	out, err := r.GetAnalysis(ctx, fp, sum)
	require.NoError(t, err)
	assert.Equal(t, 69, out.OverallScore)
	assert.Equal(t, in.SkillsProficiency, out.SkillsProficiency)
	assert.Empty(t, out.AnalysisID, "单次请求字段不进入缓存")
	assert.False(t, out.Cached)
}

func TestRedisLock(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	key := AnalysisLockKey("test-fp", "lock")
	t.Cleanup(func() { r.Client.Del(ctx, key) })

	owner, err := r.AcquireLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, owner)

	second, err := r.AcquireLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.Empty(t, second, "锁已被占用")

	released, err := r.ReleaseLock(ctx, key, "someone-else")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = r.ReleaseLock(ctx, key, owner)
	require.NoError(t, err)
	assert.True(t, released)
}
