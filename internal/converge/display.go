package converge

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/pyrite-lang/pyrite/internal/config"
)

// EventKind names a driver progress event.
type EventKind string

const (
	EventStart     EventKind = "start"
	EventFile      EventKind = "file"
	EventIteration EventKind = "iteration"
	EventFix       EventKind = "fix"
	EventDone      EventKind = "done"
)

// Event is one progress notification. In json mode each event is one
// NDJSON line.
type Event struct {
	Kind      EventKind   `json:"event"`
	Time      time.Time   `json:"time"`
	Iteration int         `json:"iteration"`
	File      string      `json:"file,omitempty"`
	Status    FileStatus  `json:"status,omitempty"`
	Cached    bool        `json:"cached,omitempty"`
	Done      int         `json:"done,omitempty"`
	Total     int         `json:"total,omitempty"`
	Rate      float64     `json:"rate"`
	Target    float64     `json:"target,omitempty"`
	Clusters  int         `json:"clusters,omitempty"`
	Fix       *AppliedFix `json:"fix,omitempty"`
	Reached   bool        `json:"reached,omitempty"`
}

// Display renders driver events. Handle is called from worker
// goroutines.
type Display interface {
	Handle(Event)
	Close() error
}

// NewDisplay picks the renderer for mode. Rich mode needs a terminal and
// degrades to minimal otherwise; interrupt is called when the user
// presses Ctrl+C inside the rich view.
func NewDisplay(mode config.Display, out io.Writer, interrupt func()) Display {
	switch mode {
	case config.DisplaySilent:
		return silentDisplay{}
	case config.DisplayJSON:
		return &jsonDisplay{enc: json.NewEncoder(out)}
	case config.DisplayRich:
		if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			return newRichDisplay(f, interrupt)
		}
	}
	return &minimalDisplay{out: out}
}

type silentDisplay struct{}

func (silentDisplay) Handle(Event) {}
func (silentDisplay) Close() error { return nil }

type jsonDisplay struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (d *jsonDisplay) Handle(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enc.Encode(e)
}

func (d *jsonDisplay) Close() error { return nil }

// minimalDisplay prints one line per iteration, fix and final result.
type minimalDisplay struct {
	mu  sync.Mutex
	out io.Writer
}

func (d *minimalDisplay) Handle(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch e.Kind {
	case EventStart:
		fmt.Fprintf(d.out, "converge: %d files, target %.1f%%\n", e.Total, e.Target)
	case EventIteration:
		fmt.Fprintf(d.out, "iteration %d: %.1f%% (%d/%d), %d clusters\n", e.Iteration, e.Rate, e.Done, e.Total, e.Clusters)
	case EventFix:
		fmt.Fprintf(d.out, "  fix %s: %s\n", e.Fix.ErrorCode, e.Fix.Description)
	case EventDone:
		verdict := "target missed"
		if e.Reached {
			verdict = "target reached"
		}
		fmt.Fprintf(d.out, "done after %d iterations: %.1f%%, %s\n", e.Iteration, e.Rate, verdict)
	}
}

func (d *minimalDisplay) Close() error { return nil }
