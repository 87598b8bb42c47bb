// Package progress implements the nested multi-bar progress reporter (C8,
// §4.8): overall/file/split/step counters rendered as progressbar/v3 bars,
// plus a single-consumer log channel so concurrent stage goroutines never
// interleave writes into the scrolling terminal region.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"loom/internal/logging"
)

// Sink is the no-op-capable target every operator.ProgressSink forwards
// into; Reporter implements it directly so a stage's progress events flow
// straight into the right nested bar.
type Sink interface {
	Step(message string, fraction float64)
}

// Level names which of the four nested counters a report line belongs to.
type Level int

const (
	LevelOverall Level = iota
	LevelFile
	LevelSplit
	LevelStep
)

// Line is one formatted log entry destined for the scrolling region below
// the bars.
type Line struct {
	Level   Level
	Label   string
	Message string
}

// Reporter owns the four nested bars and a single-consumer log channel.
// Every method is safe for concurrent use by multiple stage goroutines.
type Reporter struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
	bars     map[Level]*progressbar.ProgressBar
	lines    chan Line
	done     chan struct{}
}

// New creates a Reporter writing to out (stderr is typical so stdout stays
// clean for piped output). Bar rendering is skipped entirely when out is
// not a terminal, since animated bars corrupt redirected output.
func New(out *os.File) *Reporter {
	r := &Reporter{
		out:      out,
		colorize: isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()),
		bars:     make(map[Level]*progressbar.ProgressBar),
		lines:    make(chan Line, 64),
		done:     make(chan struct{}),
	}
	go r.consume()
	return r
}

// SetTotal (re)initializes the bar for a level with a new total unit count
// (e.g. file count for LevelOverall, split count for LevelFile).
func (r *Reporter) SetTotal(level Level, total int, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.colorize {
		return
	}
	r.bars[level] = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// Advance increments a level's bar by one unit.
func (r *Reporter) Advance(level Level) {
	r.mu.Lock()
	bar := r.bars[level]
	r.mu.Unlock()
	if bar != nil {
		_ = bar.Add(1)
	}
}

// Log queues a line for the single consumer goroutine, never blocking the
// caller on terminal I/O.
func (r *Reporter) Log(level Level, label, message string) {
	select {
	case r.lines <- Line{Level: level, Label: label, Message: message}:
	case <-r.done:
	}
}

// StageSink returns a Sink that forwards an operator's progress events as
// step-level log lines labeled with the given split id. Repetitive steps
// within the same percent bucket are suppressed by a ProgressSampler so a
// tight validation loop doesn't flood the scrolling log region.
func (r *Reporter) StageSink(splitID string) Sink {
	return &stageSink{reporter: r, splitID: splitID, sampler: logging.NewProgressSampler(5)}
}

// Close stops the consumer goroutine and finalizes any open bars.
func (r *Reporter) Close() {
	close(r.done)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bar := range r.bars {
		_ = bar.Finish()
	}
}

func (r *Reporter) consume() {
	for {
		select {
		case line := <-r.lines:
			r.mu.Lock()
			fmt.Fprintf(r.out, "%s %s\n", line.Label, line.Message)
			r.mu.Unlock()
		case <-r.done:
			return
		}
	}
}

type stageSink struct {
	reporter *Reporter
	splitID  string
	sampler  *logging.ProgressSampler
}

func (s *stageSink) Step(message string, fraction float64) {
	if !s.sampler.ShouldLog(fraction*100, message, "") {
		return
	}
	s.reporter.Log(LevelStep, s.splitID, message)
}
