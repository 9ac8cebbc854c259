// Package logging provides structured logging utilities for inboxledger.
//
// All packages log through log/slog. This package keeps attribute names
// consistent (workflow, run_id, item_id, ...) and offers a small Logger
// interface for components that should not depend on *slog.Logger directly.
//
// # Usage Patterns
//
//	logger := logging.WithRun(slog.Default(), "documents", runID)
//	logger.Info("document written",
//	    logging.Item(fileID),
//	    logging.Status(logging.StatusSuccess))
//
// Sender addresses are hashed with Sender/AnonymizeEmail before they reach
// structured logs.
package logging
