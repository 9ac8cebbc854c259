package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/teemow/inboxledger/internal/config"
	"github.com/teemow/inboxledger/internal/events"
	"github.com/teemow/inboxledger/internal/extract"
	"github.com/teemow/inboxledger/internal/google"
	"github.com/teemow/inboxledger/internal/instrumentation"
	"github.com/teemow/inboxledger/internal/logging"
	"github.com/teemow/inboxledger/internal/memguard"
	"github.com/teemow/inboxledger/internal/retry"
	"github.com/teemow/inboxledger/internal/sheets"
	"github.com/teemow/inboxledger/internal/sheetsync"
	"github.com/teemow/inboxledger/internal/state"
	"github.com/teemow/inboxledger/internal/workflow"
)

// loadConfig reads the config file and applies the persistent flags.
func loadConfig(f globalFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, f)
	return cfg, nil
}

func applyFlags(cfg *config.Config, f globalFlags) {
	if f.account != "" {
		cfg.Account = f.account
	}
	if f.logFormat != "" {
		cfg.Output.LogFormat = f.logFormat
	}
	if f.debug {
		cfg.Output.Debug = true
	}
	if f.noColor {
		cfg.Output.NoColor = true
	}
	if f.strictState {
		cfg.State.Strict = true
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.NewLogger(os.Stderr, cfg.Output.LogFormat, cfg.Output.Debug)
}

// newProvider creates the instrumentation provider described by cfg.
func newProvider(ctx context.Context, cfg *config.Config) (*instrumentation.Provider, error) {
	instrConfig := cfg.Instrumentation.Apply(instrumentation.DefaultConfig())
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	return provider, nil
}

// app is everything one workflow run needs. close releases it in reverse
// order of construction. The provider is borrowed and outlives the app, so
// the scheduler can rebuild apps on reload without re-registering metrics.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *workflow.Engine
	closers []func() error
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newApp validates cfg for wf and wires clients, state, extraction and the
// sheet backend into a workflow engine.
func newApp(ctx context.Context, cfg *config.Config, wf string, logger *slog.Logger, provider *instrumentation.Provider) (_ *app, err error) {
	if err := cfg.Validate(wf); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	auditConfig := cfg.Instrumentation.Apply(instrumentation.DefaultConfig()).AuditLogging
	metrics := provider.Metrics()

	documents := wf != config.WorkflowAttachments
	spreadsheetID := ""
	if documents && cfg.Documents.WorkbookPath == "" {
		spreadsheetID = cfg.Documents.SpreadsheetID
	}

	auth := google.NewAuthenticator(cfg.CredentialsFile, cfg.TokenDir)
	clients, err := auth.Authenticate(ctx, cfg.Account, spreadsheetID)
	if errors.Is(err, google.ErrNoToken) {
		return nil, fmt.Errorf("%w: %s", workflow.ErrPrecondition, google.AuthenticationErrorMessage(cfg.Account))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrPrecondition, err)
	}
	clients.SetMetrics(metrics)

	store, err := state.OpenDSN(ctx, cfg.State.DSN, cfg.State.Strict, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open processed state: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	emails, docs := store.Counts()
	logger.Debug("processed state loaded", slog.Int("emails", emails), slog.Int("documents", docs))

	deps := workflow.Deps{
		Mail:    clients.Gmail,
		Files:   clients.Drive,
		State:   store,
		Memory:  memguard.New(memguard.DefaultThreshold),
		Metrics: metrics,
		Audit:   instrumentation.NewAuditLoggerWithConfig(logger, auditConfig),
		Logger:  logger,
		Account: cfg.Account,
	}

	if documents {
		backend, err := a.sheetBackend(clients)
		if err != nil {
			return nil, err
		}
		rows := sheetsync.New(backend, logger)
		rows.Strategy = cfg.Documents.SheetStrategy
		rows.OnRetry = func(uint, error) { metrics.RecordRetry(ctx, instrumentation.ServiceSheets) }
		deps.Rows = rows

		service := extract.NewHTTPService(cfg.Extraction.Endpoint, cfg.Extraction.APIKey, cfg.Extraction.Agent)
		if t := cfg.Extraction.Timeout.Std(); t > 0 {
			service.Client.Timeout = t
		}
		service.SetMetrics(metrics)
		adapter := extract.NewAdapter(service, logger)
		adapter.Retry = retry.Policy{Attempts: cfg.Extraction.Attempts, Delay: cfg.Extraction.RetryDelay.Std()}
		adapter.OnRetry = func(uint, error) { metrics.RecordRetry(ctx, instrumentation.ServiceExtraction) }
		if cfg.Extraction.SchemaFile != "" {
			adapter.Validator, err = extract.LoadSchema(cfg.Extraction.SchemaFile)
			if err != nil {
				return nil, err
			}
		}
		deps.Extractor = adapter
		deps.Agent = service
	}

	a.engine, err = workflow.New(deps)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// sheetBackend returns the local workbook when one is configured, else the
// spreadsheet client.
func (a *app) sheetBackend(clients *google.Clients) (sheetsync.Sheets, error) {
	if path := a.cfg.Documents.WorkbookPath; path != "" {
		wb, err := sheets.OpenWorkbook(path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, wb.Close)
		a.logger.Info("writing rows to local workbook", slog.String("path", wb.Path()))
		return wb, nil
	}
	if clients.Sheets == nil {
		return nil, fmt.Errorf("%w: no spreadsheet configured", workflow.ErrPrecondition)
	}
	return clients.Sheets, nil
}

// run executes wf once with events sent to sink.
func (a *app) run(ctx context.Context, wf string, sink events.Sink) (events.Result, error) {
	switch wf {
	case config.WorkflowAttachments:
		opts, err := workflow.AttachmentOptionsFrom(a.cfg)
		if err != nil {
			return events.Result{}, err
		}
		return a.engine.RunAttachments(ctx, opts, sink)
	case config.WorkflowDocuments:
		return a.engine.RunDocuments(ctx, workflow.DocumentOptionsFrom(a.cfg), sink)
	case config.WorkflowCombined:
		opts, err := workflow.AttachmentOptionsFrom(a.cfg)
		if err != nil {
			return events.Result{}, err
		}
		return a.engine.RunCombined(ctx, opts, workflow.DocumentOptionsFrom(a.cfg), sink)
	default:
		return events.Result{}, fmt.Errorf("unknown workflow %q", wf)
	}
}

// runOnce is the body of the attachments, documents and run commands.
func runOnce(ctx context.Context, out io.Writer, wf string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	a, err := newApp(ctx, cfg, wf, logger, provider)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Warn("failed to release resources", logging.Err(err))
		}
	}()

	queue := consoleQueue(out, cfg.Output.NoColor, logger)
	result, err := a.run(ctx, wf, queue)
	queue.Close()
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%s run did not succeed", wf)
	}
	return nil
}

// consoleQueue decouples the engine from a slow terminal: events go through a
// non-blocking Channel that a goroutine drains into the console. The returned
// sink must be closed to flush.
func consoleQueue(out io.Writer, noColor bool, logger *slog.Logger) *queuedSink {
	q := &queuedSink{Channel: events.NewChannel(events.DefaultChannelCapacity), done: make(chan struct{}), logger: logger}
	c := newConsole(out, noColor)
	go func() {
		defer close(q.done)
		for e := range q.Events() {
			c.Emit(e)
		}
	}()
	return q
}

type queuedSink struct {
	*events.Channel
	done   chan struct{}
	logger *slog.Logger
}

// Close stops the queue and waits until every queued event is rendered.
func (q *queuedSink) Close() {
	q.Channel.Close()
	<-q.done
	if n := q.Dropped(); n > 0 {
		q.logger.Debug("console dropped events", slog.Int64("dropped", n))
	}
}
