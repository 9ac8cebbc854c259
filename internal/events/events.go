package events

import (
	"fmt"
	"time"
)

// Kind identifies the type of a progress event.
type Kind string

const (
	KindProgress Kind = "progress"
	KindStatus   Kind = "status"
	KindLog      Kind = "log"
	KindDone     Kind = "done"
)

// Level is the severity of a log event as shown to the operator.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
	LevelSuccess Level = "SUCCESS"
)

// Result is the aggregate outcome of one batch run.
type Result struct {
	Workflow string `json:"workflow"`
	RunID    string `json:"runId"`

	// Success is false only when a batch-level precondition failed.
	Success bool `json:"success"`

	// Processed counts items committed to the processed state.
	Processed int `json:"processed"`

	// Found counts attachments that were delivered, including ones already present.
	Found int `json:"found,omitempty"`

	// Uploaded counts attachments newly written to the file store.
	Uploaded int `json:"uploaded,omitempty"`

	// RowsAdded counts sheet rows appended.
	RowsAdded int `json:"rowsAdded,omitempty"`

	// Failed counts item failures.
	Failed int `json:"failed,omitempty"`

	// Skipped counts candidates not dispatched (already processed, already in sheet, no data).
	Skipped int `json:"skipped,omitempty"`
}

// Merge folds another phase's counters into r. Success stays true only if both succeeded.
func (r Result) Merge(other Result) Result {
	r.Success = r.Success && other.Success
	r.Processed += other.Processed
	r.Found += other.Found
	r.Uploaded += other.Uploaded
	r.RowsAdded += other.RowsAdded
	r.Failed += other.Failed
	r.Skipped += other.Skipped
	return r
}

// Event is a single message on the progress channel.
type Event struct {
	Kind    Kind      `json:"kind"`
	Time    time.Time `json:"time"`
	RunID   string    `json:"runId,omitempty"`
	Percent int       `json:"percent,omitempty"`
	Text    string    `json:"text,omitempty"`
	Level   Level     `json:"level,omitempty"`
	Result  *Result   `json:"result,omitempty"`
}

// String renders the event the way the console and log views show it.
func (e Event) String() string {
	ts := e.Time.Format("2006-01-02 15:04:05")
	switch e.Kind {
	case KindProgress:
		return fmt.Sprintf("[%s] progress %d%%", ts, e.Percent)
	case KindDone:
		if e.Result == nil {
			return fmt.Sprintf("[%s] done", ts)
		}
		return fmt.Sprintf("[%s] done success=%t processed=%d", ts, e.Result.Success, e.Result.Processed)
	case KindLog:
		return fmt.Sprintf("[%s] %s: %s", ts, e.Level, e.Text)
	default:
		return fmt.Sprintf("[%s] %s", ts, e.Text)
	}
}

// Sink receives events. Implementations must not block the caller.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Multi fans an event out to every non-nil sink in order.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})
