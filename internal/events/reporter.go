package events

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxledger/internal/logging"
)

// Reporter is the producer-side helper a batch uses to emit events. It stamps
// every event with the run id and time, clamps progress to 0-100 and mirrors
// log lines to a structured logger.
type Reporter struct {
	sink   Sink
	runID  string
	logger *slog.Logger
	now    func() time.Time
}

// NewReporter returns a Reporter writing to sink. A nil sink discards events;
// a nil logger disables mirroring.
func NewReporter(sink Sink, runID string, logger *slog.Logger) *Reporter {
	if sink == nil {
		sink = Discard
	}
	return &Reporter{sink: sink, runID: runID, logger: logger, now: time.Now}
}

// RunID returns the run identifier stamped on every event.
func (r *Reporter) RunID() string {
	return r.runID
}

// Progress emits a progress event, clamped to 0-100.
func (r *Reporter) Progress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	r.emit(Event{Kind: KindProgress, Percent: percent})
}

// Status emits a status line.
func (r *Reporter) Status(format string, args ...any) {
	r.emit(Event{Kind: KindStatus, Text: fmt.Sprintf(format, args...)})
}

func (r *Reporter) Info(format string, args ...any) {
	r.log(LevelInfo, fmt.Sprintf(format, args...))
}

func (r *Reporter) Warn(format string, args ...any) {
	r.log(LevelWarning, fmt.Sprintf(format, args...))
}

func (r *Reporter) Error(format string, args ...any) {
	r.log(LevelError, fmt.Sprintf(format, args...))
}

func (r *Reporter) Success(format string, args ...any) {
	r.log(LevelSuccess, fmt.Sprintf(format, args...))
}

// Done emits the terminal result.
func (r *Reporter) Done(result Result) {
	result.RunID = r.runID
	r.emit(Event{Kind: KindDone, Result: &result})
}

func (r *Reporter) log(level Level, text string) {
	r.emit(Event{Kind: KindLog, Level: level, Text: text})
	if r.logger == nil {
		return
	}
	switch level {
	case LevelError:
		r.logger.Error(text)
	case LevelWarning:
		r.logger.Warn(text)
	case LevelSuccess:
		r.logger.Info(text, logging.Status(logging.StatusSuccess))
	default:
		r.logger.Info(text)
	}
}

func (r *Reporter) emit(e Event) {
	e.Time = r.now()
	e.RunID = r.runID
	r.sink.Emit(e)
}
