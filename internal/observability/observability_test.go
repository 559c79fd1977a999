package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treechain/backend/internal/config"
	"github.com/treechain/backend/internal/logger"
)

func TestInitTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), logger.Nop(), config.TracingConfig{}, "test", nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracingExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, logger.Nop(), config.TracingConfig{Enabled: true, ServiceName: "treechain-test"}, "test", &buf)
	require.NoError(t, err)

	_, span := Tracer().Start(ctx, "levels")
	span.End()
	require.NoError(t, shutdown(ctx))

	assert.Contains(t, buf.String(), "levels")
	assert.Contains(t, buf.String(), "treechain-test")
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}
