package telemetry

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
)

const instrumentationName = "github.com/roach88/wodrt/internal/telemetry"

// Tracer opens one OpenTelemetry span per block while it is on the stack.
// Child block spans nest under their parent block's span. Spans use wall
// clock time; engine time is attached as attributes.
//
// Tracer implements engine.Observer.
type Tracer struct {
	engine.BaseObserver

	tracer trace.Tracer
	root   context.Context

	mu    sync.Mutex
	spans map[string]openSpan // by block key
	order []string            // open block keys, push order
}

type openSpan struct {
	ctx  context.Context
	span trace.Span
}

// NewTracer creates a tracer whose spans descend from ctx. A nil provider
// uses the global one.
func NewTracer(ctx context.Context, tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{
		tracer: tp.Tracer(instrumentationName),
		root:   ctx,
		spans:  make(map[string]openSpan),
	}
}

func (t *Tracer) BlockPushed(b *engine.Block) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.root
	if p, ok := t.spans[b.ParentKey]; ok {
		parent = p.ctx
	}
	ctx, span := t.tracer.Start(parent, "block."+b.Type,
		trace.WithAttributes(
			attribute.String("block.key", b.Key),
			attribute.String("block.type", b.Type),
			attribute.String("block.label", b.Label),
			attribute.Int64Slice("block.sources", b.Sources),
		),
	)
	t.spans[b.Key] = openSpan{ctx: ctx, span: span}
	t.order = append(t.order, b.Key)
}

func (t *Tracer) BlockPopped(b *engine.Block, rec ir.ExecutionRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	open, ok := t.spans[b.Key]
	if !ok {
		return
	}
	delete(t.spans, b.Key)
	if i := slices.Index(t.order, b.Key); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}

	open.span.SetAttributes(
		attribute.String("span.id", rec.ID),
		attribute.String("span.status", string(rec.Status)),
		attribute.Int64("span.seq", rec.Seq),
	)
	if rec.End != nil {
		open.span.SetAttributes(attribute.Int64("span.elapsed_ms", rec.End.Sub(rec.Start).Milliseconds()))
	}
	if rec.Status == ir.StatusFailed {
		open.span.SetStatus(codes.Error, "block failed: "+b.Label)
	} else {
		open.span.SetStatus(codes.Ok, "")
	}
	open.span.End()
}

func (t *Tracer) MetricEmitted(b *engine.Block, index int, m ir.RuntimeMetric) {
	t.mu.Lock()
	defer t.mu.Unlock()

	open, ok := t.spans[b.Key]
	if !ok {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("metric.exercise", m.ExerciseID),
		attribute.Int("metric.index", index),
	}
	for _, v := range m.Values {
		attrs = append(attrs, attribute.Int64("metric."+string(v.Type), v.Value))
	}
	open.span.AddEvent("metric", trace.WithAttributes(attrs...))
}

func (t *Tracer) EventHandled(ev events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.order) == 0 {
		return
	}
	// Events land on the innermost open span.
	open := t.spans[t.order[len(t.order)-1]]
	open.span.AddEvent("event."+ev.Name, trace.WithAttributes(
		attribute.String("event.at", ev.Timestamp.Format(time.RFC3339Nano)),
	))
}

func (t *Tracer) CompileFailed(err error) {
	_, span := t.tracer.Start(t.root, "compile")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

// SessionEnded ends any span still open, innermost first.
func (t *Tracer) SessionEnded(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.order) - 1; i >= 0; i-- {
		open := t.spans[t.order[i]]
		open.span.SetAttributes(attribute.String("session.ended_at", at.Format(time.RFC3339Nano)))
		open.span.End()
	}
	clear(t.spans)
	t.order = nil
}
