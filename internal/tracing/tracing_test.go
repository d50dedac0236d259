package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingwatch/pingwatch/internal/config"
)

func TestInit_DisabledReturnsUsableNoopProvider(t *testing.T) {
	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	ctx, span := p.StartSpan(context.Background(), "test.span")
	assert.NotNil(t, ctx)
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestShutdown_NilProviderIsSafe(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}
