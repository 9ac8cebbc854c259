package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/teemow/inboxledger/internal/logging"
	"github.com/teemow/inboxledger/internal/retry"
)

// Service is the extraction call: it reads the file at path and returns the
// structured payload.
type Service interface {
	Extract(ctx context.Context, path string) (map[string]any, error)
}

// Adapter wraps a Service with temp file handling, retry and validation.
type Adapter struct {
	service Service
	logger  *slog.Logger

	// Retry bounds the extraction call. Defaults to retry.Default.
	Retry retry.Policy

	// TempDir holds the scoped temp files; empty means os.TempDir.
	TempDir string

	// Validator, when set, rejects payloads that do not match a schema.
	Validator *SchemaValidator

	// OnRetry is called after every failed attempt that will be retried.
	OnRetry func(attempt uint, err error)
}

func NewAdapter(service Service, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{service: service, logger: logger, Retry: retry.Default}
}

// Extract runs the extraction for one document. The temp file is removed on
// every return path.
func (a *Adapter) Extract(ctx context.Context, doc DocumentRef, data []byte) (map[string]any, error) {
	ext := strings.ToLower(filepath.Ext(doc.Name))
	if ext == "" {
		ext = ".pdf"
	}
	f, err := os.CreateTemp(a.TempDir, "inboxledger-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	var payload map[string]any
	err = retry.Do(ctx, a.Retry, func(ctx context.Context) error {
		var callErr error
		payload, callErr = a.service.Extract(ctx, path)
		return callErr
	}, func(attempt uint, err error) {
		a.logger.Warn("extraction attempt failed, retrying",
			logging.Item(doc.ID),
			logging.FileName(doc.Name),
			slog.Uint64("attempt", uint64(attempt)),
			slog.Uint64("max_attempts", uint64(a.Retry.Attempts)),
			logging.Err(err))
		if a.OnRetry != nil {
			a.OnRetry(attempt, err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", doc.Name, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("failed to extract %s: empty result", doc.Name)
	}

	if err := a.Validator.Validate(payload); err != nil {
		return nil, err
	}
	return payload, nil
}
