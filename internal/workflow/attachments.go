package workflow

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/teemow/inboxledger/internal/gmail"
	"github.com/teemow/inboxledger/internal/instrumentation"
	"github.com/teemow/inboxledger/internal/logging"
	"github.com/teemow/inboxledger/internal/router"
	"github.com/teemow/inboxledger/internal/selector"
)

// sampleEmails is how many matched messages are logged after the search.
const sampleEmails = 3

// AttachmentOptions configures one attachment batch.
type AttachmentOptions struct {
	Criteria selector.EmailCriteria

	// RootFolderID is the Drive folder BaseFolder is created in. Empty means My Drive.
	RootFolderID string
	BaseFolder   string

	Layout router.PathStrategy
	Filter router.Filter

	// SkipSubjects drops messages whose subject matches any pattern.
	SkipSubjects []*regexp.Regexp
}

// attachmentOutcome is the result of dispatching one message.
type attachmentOutcome struct {
	delivered int
	uploaded  int
	rejected  int
	failed    int
}

func (e *Engine) attachments(ctx context.Context, b *batch, opts AttachmentOptions) error {
	report := b.report
	logger := logging.WithOperation(b.logger, "attachments")

	if err := e.checkMemory(b); err != nil {
		return err
	}
	report.Progress(10)

	report.Status("Searching emails")
	candidates, query, err := e.selector.FindEmailCandidates(ctx, opts.Criteria)
	if err != nil {
		return b.fail("%v", err)
	}
	logger.Info("email search finished", slog.String("query", query), slog.Int("matches", len(candidates)))
	report.Progress(25)

	if len(candidates) == 0 {
		report.Info("No emails found matching query: %s", query)
		report.Progress(100)
		return nil
	}
	report.Info("Found %d emails matching query", len(candidates))
	e.logSamples(ctx, b, candidates)

	layout := opts.Layout
	if layout == nil {
		layout = router.KeywordTypeLayout{SearchTerm: opts.Criteria.SearchTerm}
	}
	base := strings.TrimSpace(opts.BaseFolder)
	if base == "" {
		base = router.DefaultBaseFolder
	}
	baseID, err := e.router.Resolve(ctx, opts.RootFolderID, []string{base})
	if err != nil {
		return b.fail("failed to prepare base folder %s: %v", base, err)
	}
	report.Progress(50)

	for i, c := range candidates {
		report.Progress(itemProgress(50, 45, i, len(candidates)))

		if e.deps.State.HasEmail(c.ID) {
			b.result.Skipped++
			e.deps.Metrics.RecordItem(ctx, b.workflow, instrumentation.ResultSkipped, "")
			continue
		}
		e.dispatchEmail(ctx, b, c, baseID, layout, opts)
	}

	report.Progress(100)
	report.Success("Processed %d emails, %d attachments found, %d uploaded",
		b.result.Processed, b.result.Found, b.result.Uploaded)
	return nil
}

func (e *Engine) logSamples(ctx context.Context, b *batch, candidates []selector.EmailCandidate) {
	n := min(sampleEmails, len(candidates))
	for _, c := range candidates[:n] {
		meta, err := e.deps.Mail.GetMetadata(ctx, c.ID)
		if err != nil {
			b.logger.Debug("failed to read sample email", logging.Item(c.ID), logging.Err(err))
			continue
		}
		b.report.Info("Sample: %s (from %s)", meta.Subject, meta.SenderAddress())
	}
}

// dispatchEmail delivers every allowed attachment of one message and commits
// the message once at least one was delivered and none failed.
func (e *Engine) dispatchEmail(ctx context.Context, b *batch, c selector.EmailCandidate, baseID string, layout router.PathStrategy, opts AttachmentOptions) {
	ctx, span := instrumentation.StartItemSpan(ctx, "email", c.ID)
	logger := b.logger.With(logging.Item(c.ID))

	meta, err := e.deps.Mail.GetMetadata(ctx, c.ID)
	if err != nil {
		e.emailFailed(ctx, b, logger, "", "failed to read email", err)
		instrumentation.EndSpan(span, err)
		return
	}
	sender := meta.SenderAddress()

	if re := matchSubject(opts.SkipSubjects, meta.Subject); re != nil {
		logger.Info("skipping email by subject", slog.String("pattern", re.String()))
		b.report.Info("Skipping email: %s", meta.Subject)
		b.result.Skipped++
		e.deps.Metrics.RecordItem(ctx, b.workflow, instrumentation.ResultSkipped, sender)
		instrumentation.EndSpan(span, nil)
		return
	}

	atts, err := e.deps.Mail.ListAttachments(ctx, c.ID)
	if err != nil {
		e.emailFailed(ctx, b, logger, sender, "failed to list attachments", err)
		instrumentation.EndSpan(span, err)
		return
	}

	var out attachmentOutcome
	for _, att := range atts {
		e.deliver(ctx, b, logger, meta, att, baseID, layout, opts.Filter, &out)
	}
	b.result.Found += out.delivered
	b.result.Uploaded += out.uploaded

	switch {
	case out.failed > 0:
		b.result.Failed++
		e.deps.Metrics.RecordItem(ctx, b.workflow, instrumentation.ResultFailed, sender)
		b.report.Warn("Email %s left unprocessed: %d of %d attachments failed", c.ID, out.failed, len(atts))
		instrumentation.EndSpan(span, nil)
		return
	case out.delivered == 0:
		logger.Info("no attachments delivered", slog.Int("attachments", len(atts)), slog.Int("rejected", out.rejected))
		b.result.Skipped++
		e.deps.Metrics.RecordItem(ctx, b.workflow, instrumentation.ResultSkipped, sender)
		instrumentation.EndSpan(span, nil)
		return
	}

	if err := e.deps.State.MarkEmail(ctx, c.ID); err != nil {
		e.emailFailed(ctx, b, logger, sender, "failed to record processed email", err)
		instrumentation.EndSpan(span, err)
		return
	}
	b.result.Processed++
	e.deps.Metrics.RecordItem(ctx, b.workflow, instrumentation.ResultProcessed, sender)
	instrumentation.EndSpan(span, nil)
}

func (e *Engine) deliver(ctx context.Context, b *batch, logger *slog.Logger, meta *gmail.MessageMeta, att *gmail.AttachmentInfo, baseID string, layout router.PathStrategy, filter router.Filter, out *attachmentOutcome) {
	logger = logger.With(logging.FileName(att.Filename))
	if ok, reason := filter.Allow(att.Filename, att.MimeType, att.Size); !ok {
		logger.Info("attachment filtered", slog.String("reason", reason))
		out.rejected++
		return
	}

	segments := layout.Segments(router.Attachment{
		Filename: att.Filename,
		MimeType: att.MimeType,
		Sender:   meta.SenderAddress(),
		Received: meta.Received,
	})
	folderID, err := e.router.Resolve(ctx, baseID, segments)
	if err != nil {
		logger.Error("failed to resolve folder", slog.String("path", strings.Join(segments, "/")), logging.Err(err))
		b.report.Error("Could not prepare folder for %s: %v", att.Filename, err)
		out.failed++
		return
	}

	data, err := e.deps.Mail.GetAttachment(ctx, att.MessageID, att.AttachmentID)
	if err != nil {
		logger.Error("failed to download attachment", logging.Err(err))
		b.report.Error("Could not download %s: %v", att.Filename, err)
		out.failed++
		return
	}

	written, err := e.writer.Write(ctx, folderID, att.Filename, data, att.MimeType)
	if err != nil {
		logger.Error("failed to write attachment", logging.Err(err))
		b.report.Error("Could not upload %s: %v", att.Filename, err)
		out.failed++
		return
	}

	out.delivered++
	if !written.Uploaded {
		logger.Debug("attachment already present", slog.String("file_id", written.FileID))
		return
	}
	out.uploaded++
	e.deps.Metrics.RecordUpload(ctx, len(data))
	b.report.Success("Uploaded %s", written.Name)
}

func (e *Engine) emailFailed(ctx context.Context, b *batch, logger *slog.Logger, sender, msg string, err error) {
	logger.Error(msg, logging.Err(err))
	b.report.Error("%s: %v", msg, err)
	b.result.Failed++
	e.deps.Metrics.RecordItem(ctx, b.workflow, instrumentation.ResultFailed, sender)
}

func matchSubject(patterns []*regexp.Regexp, subject string) *regexp.Regexp {
	for _, re := range patterns {
		if re.MatchString(subject) {
			return re
		}
	}
	return nil
}
