package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitProviderRequiresEndpoint(t *testing.T) {
	shutdown, err := InitProvider(context.Background(), ProviderConfig{ServiceName: "resume-ats"})
	require.Error(t, err)
	assert.Nil(t, shutdown)
}

func TestInitProviderLazyExporter(t *testing.T) {
	// otlptracegrpc 采用惰性连接，导出端不可达时创建也应成功
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		Endpoint:    "127.0.0.1:1",
		Insecure:    true,
		ServiceName: "resume-ats",
		SampleRatio: 0.5,
	})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestSampleRatio(t *testing.T) {
	assert.Equal(t, 1.0, sampleRatio(0))
	assert.Equal(t, 1.0, sampleRatio(-0.2))
	assert.Equal(t, 1.0, sampleRatio(3))
	assert.Equal(t, 0.25, sampleRatio(0.25))
}
