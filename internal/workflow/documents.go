package workflow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/teemow/inboxledger/internal/extract"
	"github.com/teemow/inboxledger/internal/instrumentation"
	"github.com/teemow/inboxledger/internal/logging"
	"github.com/teemow/inboxledger/internal/selector"
)

// DocumentOptions configures one document batch.
type DocumentOptions struct {
	Criteria selector.DocumentCriteria

	// Tab is the sheet tab rows are written to.
	Tab string

	// SkipExisting skips documents whose id already appears in the tab.
	SkipExisting bool
}

func (e *Engine) documents(ctx context.Context, b *batch, opts DocumentOptions) error {
	report := b.report
	logger := logging.WithOperation(b.logger, "documents")

	if e.deps.Extractor == nil || e.deps.Rows == nil {
		return b.fail("document extraction is not configured")
	}
	if err := e.checkMemory(b); err != nil {
		return err
	}
	if e.deps.Agent != nil {
		report.Status("Checking extraction agent")
		if err := e.deps.Agent.LookupAgent(ctx); err != nil {
			return b.fail("extraction agent unavailable: %v", err)
		}
	}
	report.Progress(20)

	report.Status("Listing documents")
	candidates, query, err := e.selector.FindDocumentCandidates(ctx, opts.Criteria)
	if err != nil {
		return b.fail("%v", err)
	}
	logger.Info("document listing finished", slog.String("query", query), slog.Int("matches", len(candidates)))
	report.Progress(40)

	if len(candidates) == 0 {
		report.Info("No PDF files found in folder")
		report.Progress(100)
		return nil
	}
	report.Info("Found %d PDF files", len(candidates))

	var inSheet map[string]struct{}
	if opts.SkipExisting {
		inSheet, err = e.deps.Rows.ExistingIDs(ctx, opts.Tab)
		if err != nil {
			logger.Warn("failed to read existing sheet ids, processing all documents", logging.Err(err))
			report.Warn("Could not read existing sheet entries: %v", err)
		}
	}

	for i, c := range candidates {
		report.Progress(itemProgress(40, 55, i, len(candidates)))

		if e.deps.State.HasDocument(c.ID) {
			b.result.Skipped++
			e.deps.Metrics.RecordItem(ctx, b.workflow, instrumentation.ResultSkipped, "")
			continue
		}
		if _, ok := inSheet[c.ID]; ok {
			logger.Debug("document already in sheet", logging.Item(c.ID), logging.FileName(c.Name))
			b.result.Skipped++
			e.deps.Metrics.RecordItem(ctx, b.workflow, instrumentation.ResultSkipped, "")
			continue
		}
		report.Status("Processing %s (%d/%d)", c.Name, i+1, len(candidates))
		e.dispatchDocument(ctx, b, c, opts.Tab)
	}

	report.Progress(100)
	report.Success("Processed %d documents, %d rows added", b.result.Processed, b.result.RowsAdded)
	return nil
}

// dispatchDocument downloads, extracts and writes one document and commits it
// once its rows are in the sheet.
func (e *Engine) dispatchDocument(ctx context.Context, b *batch, c selector.DocumentCandidate, tab string) {
	ctx, span := instrumentation.StartItemSpan(ctx, "document", c.ID)
	logger := b.logger.With(logging.Item(c.ID), logging.FileName(c.Name))
	doc := extract.DocumentRef{ID: c.ID, Name: c.Name}

	data, err := e.deps.Files.Download(ctx, c.ID)
	if err != nil {
		e.documentFailed(ctx, b, logger, c.Name, "failed to download document", err)
		instrumentation.EndSpan(span, err)
		return
	}

	payload, err := e.deps.Extractor.Extract(ctx, doc, data)
	if errors.Is(err, extract.ErrInvalidPayload) {
		logger.Warn("extraction payload rejected by schema", logging.Err(err))
		b.report.Warn("Extraction of %s does not match the schema, skipping", c.Name)
		e.documentSkipped(ctx, b)
		instrumentation.EndSpan(span, nil)
		return
	}
	if err != nil {
		e.documentFailed(ctx, b, logger, c.Name, "failed to extract document", err)
		instrumentation.EndSpan(span, err)
		return
	}

	rows, err := extract.Normalize(payload, doc, e.now())
	switch {
	case errors.Is(err, extract.ErrNoLineItems):
		logger.Warn("extraction returned no line items", logging.Err(err))
		b.report.Warn("No line items extracted from %s", c.Name)
		e.documentSkipped(ctx, b)
		instrumentation.EndSpan(span, nil)
		return
	case err != nil:
		e.documentFailed(ctx, b, logger, c.Name, "failed to normalize extraction", err)
		instrumentation.EndSpan(span, err)
		return
	case len(rows) == 0:
		logger.Info("no rows to write")
		b.report.Info("No data rows in %s", c.Name)
		e.documentSkipped(ctx, b)
		instrumentation.EndSpan(span, nil)
		return
	}

	written, err := e.deps.Rows.Replace(ctx, tab, c.ID, rows)
	if err != nil {
		e.documentFailed(ctx, b, logger, c.Name, "failed to write rows", err)
		instrumentation.EndSpan(span, err)
		return
	}
	e.deps.Metrics.RecordSheetRows(ctx, instrumentation.RowsDeleted, written.RowsDeleted)
	e.deps.Metrics.RecordSheetRows(ctx, instrumentation.RowsAppended, written.RowsAppended)
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithSheet(tab, written.RowsAppended).Build()...)

	if err := e.deps.State.MarkDocument(ctx, c.ID); err != nil {
		e.documentFailed(ctx, b, logger, c.Name, "failed to record processed document", err)
		instrumentation.EndSpan(span, err)
		return
	}

	b.result.Processed++
	b.result.RowsAdded += written.RowsAppended
	e.deps.Metrics.RecordItem(ctx, b.workflow, instrumentation.ResultProcessed, "")
	logger.Info("document written",
		slog.Int("rows_appended", written.RowsAppended),
		slog.Int("rows_deleted", written.RowsDeleted))
	b.report.Success("Added %d rows from %s", written.RowsAppended, c.Name)
	instrumentation.EndSpan(span, nil)
}

func (e *Engine) documentSkipped(ctx context.Context, b *batch) {
	b.result.Skipped++
	e.deps.Metrics.RecordItem(ctx, b.workflow, instrumentation.ResultSkipped, "")
}

func (e *Engine) documentFailed(ctx context.Context, b *batch, logger *slog.Logger, name, msg string, err error) {
	logger.Error(msg, logging.Err(err))
	b.report.Error("%s %s: %v", msg, name, err)
	b.result.Failed++
	e.deps.Metrics.RecordItem(ctx, b.workflow, instrumentation.ResultFailed, "")
}
