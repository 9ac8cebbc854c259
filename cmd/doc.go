// Package cmd implements the command-line interface for inboxledger.
//
// This package provides the following commands:
//   - attachments: Copy attachments of matching emails into Drive folders
//   - documents: Extract new Drive PDFs into a spreadsheet tab
//   - run: Run both workflows once
//   - schedule: Run a workflow on an interval with health, metrics and an event stream
//   - auth: Authorize a Google account
//   - config: Show or validate the effective configuration
//   - version: Display version information
//
// The run command is the default command when no subcommand is specified.
package cmd
