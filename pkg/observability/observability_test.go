package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracerWithoutInitializeIsUsable(t *testing.T) {
	err := TraceOperatorPhase(context.Background(), "source", "pre-action", func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)
	RecordTreePrepared(context.Background(), "tree-1")
}

func TestTraceOperatorPhaseExportsSpans(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Tracing.Writer = &out
	cfg.Tracing.Synchronous = true
	require.NoError(t, Initialize(cfg))
	t.Cleanup(func() { _ = Shutdown(context.Background()) })

	boom := errors.New("child reported zero workers")
	err := TraceOperatorPhase(context.Background(), "batch", "post-action", func(ctx context.Context) error {
		_, span := StartSpan(ctx, "inner")
		span.SetAttribute("rows", 10)
		span.AddEvent("checked")
		span.End(nil)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	RecordTreePrepared(context.Background(), "tree-2")

	require.NoError(t, Shutdown(context.Background()))
	exported := out.String()
	assert.Contains(t, exported, "operator.post-action")
	assert.Contains(t, exported, "stratus.operator")
	assert.Contains(t, exported, "child reported zero workers")
	assert.Contains(t, exported, "inner")
}
