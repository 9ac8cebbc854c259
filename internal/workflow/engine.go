package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/inboxledger/internal/drive"
	"github.com/teemow/inboxledger/internal/events"
	"github.com/teemow/inboxledger/internal/extract"
	"github.com/teemow/inboxledger/internal/gmail"
	"github.com/teemow/inboxledger/internal/instrumentation"
	"github.com/teemow/inboxledger/internal/logging"
	"github.com/teemow/inboxledger/internal/memguard"
	"github.com/teemow/inboxledger/internal/router"
	"github.com/teemow/inboxledger/internal/selector"
	"github.com/teemow/inboxledger/internal/sheetsync"
)

// ErrPrecondition marks a batch-level failure. Item failures never wrap it.
var ErrPrecondition = errors.New("batch precondition failed")

// DefaultPause separates the two phases of a combined run.
const DefaultPause = 2 * time.Second

// Mail is the message capability of the attachment batch.
type Mail interface {
	Search(ctx context.Context, query string, maxResults int) ([]gmail.MessageRef, error)
	GetMetadata(ctx context.Context, messageID string) (*gmail.MessageMeta, error)
	ListAttachments(ctx context.Context, messageID string) ([]*gmail.AttachmentInfo, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// Files is the file store capability of both batches.
type Files interface {
	ListAll(ctx context.Context, query, orderBy string) ([]*drive.FileInfo, error)
	FindFolder(ctx context.Context, name, parentID string) (*drive.FileInfo, error)
	CreateFolder(ctx context.Context, name, parentID string) (*drive.FileInfo, error)
	FindFile(ctx context.Context, name, parentID string) (*drive.FileInfo, error)
	UploadFile(ctx context.Context, name string, content io.Reader, options *drive.UploadOptions) (*drive.FileInfo, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Extractor turns document bytes into an extraction payload.
type Extractor interface {
	Extract(ctx context.Context, doc extract.DocumentRef, data []byte) (map[string]any, error)
}

// RowWriter writes extracted rows into a sheet tab.
type RowWriter interface {
	Replace(ctx context.Context, tab, itemID string, rows []*extract.Row) (*sheetsync.Result, error)
	ExistingIDs(ctx context.Context, tab string) (map[string]struct{}, error)
}

// AgentChecker confirms the configured extraction agent exists.
type AgentChecker interface {
	LookupAgent(ctx context.Context) error
}

// State is the processed-id store.
type State interface {
	HasEmail(id string) bool
	HasDocument(id string) bool
	MarkEmail(ctx context.Context, id string) error
	MarkDocument(ctx context.Context, id string) error
}

// MemoryGuard is the memory circuit breaker.
type MemoryGuard interface {
	Check() (memguard.Usage, error)
}

// Deps are the collaborators of an Engine. Mail, Files and State are
// required; the document batch also needs Extractor and Rows.
type Deps struct {
	Mail      Mail
	Files     Files
	Extractor Extractor
	Rows      RowWriter
	Agent     AgentChecker
	State     State
	Memory    MemoryGuard

	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger
	Account string
}

// Engine runs batches. It is not safe for concurrent runs.
type Engine struct {
	deps     Deps
	logger   *slog.Logger
	selector *selector.Selector
	router   *router.Router
	writer   *router.Writer

	// Pause is the delay between the phases of RunCombined.
	Pause time.Duration

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	newRunID func() string
}

// New returns an Engine over deps.
func New(deps Deps) (*Engine, error) {
	if deps.Mail == nil {
		return nil, fmt.Errorf("mail capability is required")
	}
	if deps.Files == nil {
		return nil, fmt.Errorf("files capability is required")
	}
	if deps.State == nil {
		return nil, fmt.Errorf("processed state is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Account != "" {
		logger = logging.WithAccount(logger, deps.Account)
	}

	e := &Engine{
		deps:     deps,
		logger:   logger,
		selector: selector.New(deps.Mail, deps.Files),
		router:   router.NewRouter(deps.Files, logger),
		writer:   router.NewWriter(deps.Files),
		Pause:    DefaultPause,
		now:      time.Now,
		sleep:    sleepContext,
		newRunID: func() string { return uuid.NewString() },
	}
	e.selector.Now = e.clock
	return e, nil
}

func (e *Engine) clock() time.Time {
	return e.now()
}

// RunAttachments copies matching email attachments into the file store.
func (e *Engine) RunAttachments(ctx context.Context, opts AttachmentOptions, sink events.Sink) (events.Result, error) {
	return e.run(ctx, instrumentation.WorkflowAttachments, opts.Criteria.Sender, sink,
		func(ctx context.Context, b *batch) error {
			return e.attachments(ctx, b, opts)
		})
}

// RunDocuments extracts matching documents into the sheet.
func (e *Engine) RunDocuments(ctx context.Context, opts DocumentOptions, sink events.Sink) (events.Result, error) {
	return e.run(ctx, instrumentation.WorkflowDocuments, "", sink,
		func(ctx context.Context, b *batch) error {
			return e.documents(ctx, b, opts)
		})
}

// RunCombined runs the attachment batch, waits Pause and then runs the
// document batch. The documents still run when the attachment phase failed
// a precondition; the result is not successful in that case.
func (e *Engine) RunCombined(ctx context.Context, a AttachmentOptions, d DocumentOptions, sink events.Sink) (events.Result, error) {
	return e.run(ctx, instrumentation.WorkflowCombined, a.Criteria.Sender, sink,
		func(ctx context.Context, b *batch) error {
			b.report.Status("Phase 1: email attachments")
			first := e.attachments(ctx, b, a)
			if first != nil {
				b.report.Error("Attachment phase failed: %v", first)
			}
			if err := e.sleep(ctx, e.Pause); err != nil {
				return errors.Join(first, err)
			}
			b.report.Status("Phase 2: documents")
			second := e.documents(ctx, b, d)
			return errors.Join(first, second)
		})
}

// batch carries the per-run state shared by the phases.
type batch struct {
	workflow string
	report   *events.Reporter
	logger   *slog.Logger
	result   events.Result
}

func (b *batch) fail(format string, args ...any) error {
	err := fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
	b.logger.Error("batch aborted", logging.Err(err))
	b.report.Error("%s", err.Error())
	return err
}

func (e *Engine) run(ctx context.Context, workflow, sender string, sink events.Sink, body func(context.Context, *batch) error) (events.Result, error) {
	runID := e.newRunID()
	logger := logging.WithRun(e.logger, workflow, runID)

	ctx, span := instrumentation.StartRunSpan(ctx, workflow, runID)
	record := instrumentation.NewRunRecord(workflow, runID).
		WithAccount(e.deps.Account).
		WithSender(sender).
		WithSpanContext(ctx)

	b := &batch{
		workflow: workflow,
		// Log lines go to logger with item context, so events are not mirrored.
		report: events.NewReporter(sink, runID, nil),
		logger: logger,
		result: events.Result{Workflow: workflow, Success: true},
	}

	started := e.now()
	err := body(ctx, b)
	if err != nil {
		b.result.Success = false
	}
	b.result.RunID = runID

	instrumentation.EndSpan(span, err)
	e.deps.Metrics.RecordRun(ctx, workflow, b.result.Success, e.now().Sub(started))

	record.Found = b.result.Found
	record.Processed = b.result.Processed
	record.Skipped = b.result.Skipped
	record.Failed = b.result.Failed
	record.Uploaded = b.result.Uploaded
	record.RowsAdded = b.result.RowsAdded
	e.deps.Audit.LogRun(record.Complete(b.result.Success, err))

	b.report.Done(b.result)
	return b.result, err
}

// checkMemory trips the circuit breaker before a batch starts.
func (e *Engine) checkMemory(b *batch) error {
	if e.deps.Memory == nil {
		return nil
	}
	usage, err := e.deps.Memory.Check()
	if errors.Is(err, memguard.ErrMemoryPressure) {
		return b.fail("%v", err)
	}
	if err != nil {
		b.logger.Warn("memory check unavailable", logging.Err(err))
		return nil
	}
	b.logger.Debug("memory check passed",
		slog.Uint64("process_bytes", usage.Process),
		slog.Uint64("system_bytes", usage.System))
	return nil
}

// itemProgress maps item i of n onto the span [from, from+width].
func itemProgress(from, width, i, n int) int {
	if n <= 0 {
		return from + width
	}
	return from + width*i/n
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
