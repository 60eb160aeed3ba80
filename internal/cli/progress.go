package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/ir"
)

// progress prints block transitions and metrics as a session runs. It is
// called from the engine goroutine only.
type progress struct {
	engine.BaseObserver

	w     io.Writer
	depth int
}

func (p *progress) BlockPushed(b *engine.Block) {
	p.depth++
	if b.Type == "root" {
		return
	}
	fmt.Fprintf(p.w, "%s▶ %s (%s)\n", p.indent(), b.Label, b.Type)
}

func (p *progress) BlockPopped(b *engine.Block, rec ir.ExecutionRecord) {
	defer func() { p.depth-- }()
	if b.Type == "root" {
		return
	}
	mark := "✓"
	if rec.Status == ir.StatusFailed {
		mark = "✗"
	}
	var elapsed time.Duration
	if rec.End != nil {
		elapsed = rec.End.Sub(rec.Start)
	}
	fmt.Fprintf(p.w, "%s%s %s %s\n", p.indent(), mark, b.Label, formatElapsed(elapsed))
}

func (p *progress) MetricEmitted(_ *engine.Block, _ int, m ir.RuntimeMetric) {
	fmt.Fprintf(p.w, "%s  %s %s\n", p.indent(), m.ExerciseID, formatValues(m.Values))
}

func (p *progress) CompileFailed(err error) {
	fmt.Fprintf(p.w, "%s! %v\n", p.indent(), err)
}

func (p *progress) indent() string {
	if p.depth <= 1 {
		return ""
	}
	return strings.Repeat("  ", p.depth-2)
}

// formatElapsed renders a duration as m:ss.
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func formatValues(values []ir.MetricValue) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		s := fmt.Sprintf("%s=%d", v.Type, v.Value)
		if v.Unit != "" {
			s += v.Unit
		}
		parts = append(parts, s)
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
