package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxledger/internal/config"
)

// newWorkflowCmd builds a command that runs wf once and exits non-zero when
// a batch precondition failed.
func newWorkflowCmd(wf, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   wf,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runOnce(ctx, cmd.OutOrStdout(), wf)
		},
	}
}

func newAttachmentsCmd() *cobra.Command {
	return newWorkflowCmd(config.WorkflowAttachments,
		"Copy attachments of matching emails into Drive",
		`Search Gmail for new emails from the configured sender, upload their
attachments into Drive folders and remember the emails as processed.

Attachments already present in the target folder are not uploaded again.
An email whose attachments all arrived is never handled again.`)
}

func newDocumentsCmd() *cobra.Command {
	return newWorkflowCmd(config.WorkflowDocuments,
		"Extract new Drive PDFs into a spreadsheet tab",
		`List recent PDFs in the configured Drive folder, send each new one to the
extraction service and write its line items into the sheet tab.

Rows of a document are replaced as a unit, so a rerun never duplicates them.`)
}

func newRunCmd() *cobra.Command {
	return newWorkflowCmd(config.WorkflowCombined,
		"Run the attachments and documents workflows once",
		`Run the attachments workflow, pause briefly, then run the documents
workflow. The documents workflow runs even when attachments failed.

This is the default when inboxledger is started without a command.`)
}
