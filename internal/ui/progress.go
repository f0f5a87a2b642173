package ui

import (
	"fmt"
	"io"
	"time"
)

// ProgressReporter prints one line per pipeline stage and the overall
// completion fraction.
type ProgressReporter struct {
	out          io.Writer
	total        int
	index        int
	lastFraction float64
	stageStart   time.Time
}

// NewProgressReporter reports on total stages to w.
func NewProgressReporter(w io.Writer, total int) *ProgressReporter {
	return &ProgressReporter{out: w, total: total}
}

// OnStageStart prints the stage heading.
func (p *ProgressReporter) OnStageStart(name string) {
	if p.index > 0 {
		fmt.Fprintln(p.out, SubtleStyle.Render(fmt.Sprintf("    done in %s", time.Since(p.stageStart).Round(time.Millisecond))))
	}
	p.index++
	p.stageStart = time.Now()
	fmt.Fprintf(p.out, "%s %s\n",
		SubtleStyle.Render(fmt.Sprintf("[%d/%d]", p.index, p.total)),
		StageStyle.Render(name))
}

// OnStageProgress prints the overall fraction when it advances by at least
// a quarter, and always at completion.
func (p *ProgressReporter) OnStageProgress(fraction float64) {
	if fraction < p.lastFraction+0.25 && fraction < 1 {
		return
	}
	if p.lastFraction >= 1 {
		return
	}
	p.lastFraction = fraction
	fmt.Fprintln(p.out, SubtleStyle.Render(fmt.Sprintf("    %3.0f%% complete", fraction*100)))
}
