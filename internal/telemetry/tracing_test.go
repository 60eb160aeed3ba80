package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/memory"
	"github.com/roach88/wodrt/internal/testutil"
)

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	rec := tracetest.NewSpanRecorder()
	return rec, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracer_SpanPerBlock(t *testing.T) {
	rec, tp := newRecorder()
	runFran(t, NewTracer(context.Background(), tp))

	ended := rec.Ended()
	require.NotEmpty(t, ended)
	assert.Len(t, rec.Started(), len(ended), "every started span ends")

	byKey := make(map[string]sdktrace.ReadOnlySpan)
	efforts := 0
	for _, s := range ended {
		key, ok := attr(s, "block.key")
		require.True(t, ok)
		byKey[key.AsString()] = s
		if s.Name() == "block.effort" {
			efforts++
			status, _ := attr(s, "span.status")
			assert.Equal(t, "completed", status.AsString())
			assert.Equal(t, codes.Ok, s.Status().Code)
		}
	}
	assert.Equal(t, 6, efforts)

	// Root is the last span to end and every other span descends from it.
	root := ended[len(ended)-1]
	assert.Equal(t, "block.root", root.Name())
	assert.False(t, root.Parent().IsValid())
	for _, s := range ended[:len(ended)-1] {
		assert.Equal(t, root.SpanContext().TraceID(), s.SpanContext().TraceID())
		assert.True(t, s.Parent().IsValid(), s.Name())
	}
}

func TestTracer_MetricsBecomeEvents(t *testing.T) {
	rec, tp := newRecorder()
	runFran(t, NewTracer(context.Background(), tp))

	var found bool
	for _, s := range rec.Ended() {
		for _, ev := range s.Events() {
			if ev.Name != "metric" {
				continue
			}
			for _, kv := range ev.Attributes {
				if kv.Key == "metric.exercise" && kv.Value.AsString() == "thrusters" {
					found = true
				}
			}
		}
	}
	assert.True(t, found, "thrusters metric recorded as a span event")
}

func TestTracer_FailedBlockSetsErrorStatus(t *testing.T) {
	rec, tp := newRecorder()
	tr := NewTracer(context.Background(), tp)

	store := memory.New()
	b := engine.NewBlock("blk-9", "", "error", "compile error", []int64{7}, store.Context("blk-9"))
	tr.BlockPushed(b)
	tr.BlockPopped(b, ir.ExecutionRecord{ID: "span-9", Type: "error", Status: ir.StatusFailed, Start: testutil.Epoch})

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Status().Description, "compile error")
}

func TestTracer_CompileFailed(t *testing.T) {
	rec, tp := newRecorder()
	NewTracer(context.Background(), tp).CompileFailed(errSample())

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "compile", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}

func TestTracer_SessionEndedClosesOpenSpans(t *testing.T) {
	rec, tp := newRecorder()
	tr := NewTracer(context.Background(), tp)

	store := memory.New()
	root := engine.NewBlock("blk-1", "", "root", "root", nil, store.Context("blk-1"))
	child := engine.NewBlock("blk-2", "blk-1", "effort", "Burpees", []int64{1}, store.Context("blk-2"))
	tr.BlockPushed(root)
	tr.BlockPushed(child)
	tr.SessionEnded(testutil.Epoch)

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "block.effort", ended[0].Name())
	assert.Equal(t, "block.root", ended[1].Name())
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())
}
