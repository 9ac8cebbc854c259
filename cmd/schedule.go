package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxledger/internal/config"
	"github.com/teemow/inboxledger/internal/events"
	"github.com/teemow/inboxledger/internal/instrumentation"
	"github.com/teemow/inboxledger/internal/logging"
	"github.com/teemow/inboxledger/internal/server"
)

type scheduleFlags struct {
	workflow string
	interval time.Duration
	listen   string
	noWatch  bool
}

func newScheduleCmd() *cobra.Command {
	var sf scheduleFlags

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run a workflow on an interval and serve health, metrics and events",
		Long: `Run a workflow immediately and then on every interval until interrupted.

While running, an HTTP server exposes:
  /healthz, /readyz, /healthz/detailed   liveness and last run result
  /metrics                               Prometheus metrics, when exported
  /events                                websocket stream of batch events

Changes to the config file are picked up before the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSchedule(cmd, sf)
		},
	}

	cmd.Flags().StringVar(&sf.workflow, "workflow", "", "Workflow to run: attachments, documents or run (default from config)")
	cmd.Flags().DurationVar(&sf.interval, "interval", 0, "Time between runs (default from config)")
	cmd.Flags().StringVar(&sf.listen, "listen", "", "HTTP listen address (default from config)")
	cmd.Flags().BoolVar(&sf.noWatch, "no-watch", false, "Do not reload the config file when it changes")
	return cmd
}

// applyScheduleFlags layers the command flags over the schedule section.
func applyScheduleFlags(cfg *config.Config, sf scheduleFlags) {
	if sf.workflow != "" {
		cfg.Schedule.Workflow = sf.workflow
	}
	if sf.interval > 0 {
		cfg.Schedule.Interval = config.Duration(sf.interval)
	}
	if sf.listen != "" {
		cfg.Schedule.ListenAddr = sf.listen
	}
}

func runSchedule(cmd *cobra.Command, sf scheduleFlags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	applyScheduleFlags(cfg, sf)
	if cfg.Schedule.Interval.Std() <= 0 {
		return fmt.Errorf("%w: schedule.interval must be positive", config.ErrInvalid)
	}
	logger := logging.WithOperation(newLogger(cfg), "schedule")

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	a, err := newApp(ctx, cfg, cfg.Schedule.Workflow, logger, provider)
	if err != nil {
		return err
	}
	s := &scheduler{app: a, logger: logger, provider: provider, sf: sf}
	defer s.close()

	health := server.NewHealthChecker()
	hub := server.NewHub(logger)
	srv, err := server.New(server.Config{
		Addr:     cfg.Schedule.ListenAddr,
		Provider: provider,
		Health:   health,
		Hub:      hub,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown failed", logging.Err(err))
		}
	}()

	var reload <-chan struct{}
	if path := watchedConfigPath(flags.configPath); path != "" && !sf.noWatch {
		w, err := watchConfig(path, logger)
		if err != nil {
			logger.Warn("config reload disabled", logging.Err(err))
		} else {
			defer w.Close()
			reload = w.Changes()
		}
	}

	s.sink = events.Multi{newConsole(cmd.OutOrStdout(), cfg.Output.NoColor), hub, health}

	ticker := time.NewTicker(cfg.Schedule.Interval.Std())
	defer ticker.Stop()

	logger.Info("scheduler started",
		slog.String("workflow", cfg.Schedule.Workflow),
		slog.Duration("interval", cfg.Schedule.Interval.Std()))
	s.runBatch(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received, stopping scheduler")
			return nil
		case err := <-serverDone:
			if err != nil {
				return fmt.Errorf("http server stopped with error: %w", err)
			}
			serverDone = nil
		case <-reload:
			if interval, ok := s.reload(ctx); ok {
				ticker.Reset(interval)
			}
		case <-ticker.C:
			s.runBatch(ctx)
		}
	}
}

// scheduler owns the current app between runs.
type scheduler struct {
	app      *app
	logger   *slog.Logger
	sink     events.Sink
	provider *instrumentation.Provider
	sf       scheduleFlags
}

// close releases the current app. Apps replaced by swap are already closed.
func (s *scheduler) close() {
	if err := s.app.close(); err != nil {
		s.logger.Warn("failed to release resources", logging.Err(err))
	}
}

// runBatch runs the configured workflow once. Failures are reported on the
// sink and logged; they never stop the scheduler.
func (s *scheduler) runBatch(ctx context.Context) {
	wf := s.app.cfg.Schedule.Workflow
	result, err := s.app.run(ctx, wf, s.sink)
	switch {
	case ctx.Err() != nil:
	case err != nil:
		s.logger.Error("scheduled run failed", slog.String("workflow", wf), logging.Err(err))
	default:
		s.logger.Info("scheduled run finished",
			slog.String("workflow", wf),
			slog.Bool("success", result.Success),
			slog.Int("processed", result.Processed),
			slog.Int("failed", result.Failed))
	}
}

// reload rebuilds the app from the config file. On any error the current
// app stays in place.
func (s *scheduler) reload(ctx context.Context) (time.Duration, bool) {
	cfg, err := loadConfig(flags)
	if err == nil {
		applyScheduleFlags(cfg, s.sf)
		if cfg.Schedule.Interval.Std() <= 0 {
			err = fmt.Errorf("%w: schedule.interval must be positive", config.ErrInvalid)
		}
	}
	if err != nil {
		s.logger.Warn("config reload failed, keeping current settings", logging.Err(err))
		return 0, false
	}

	next, err := newApp(ctx, cfg, cfg.Schedule.Workflow, s.logger, s.provider)
	if err != nil {
		s.logger.Warn("config reload failed, keeping current settings", logging.Err(err))
		return 0, false
	}
	s.swap(next)
	s.logger.Info("config reloaded",
		slog.String("workflow", cfg.Schedule.Workflow),
		slog.Duration("interval", cfg.Schedule.Interval.Std()))
	return cfg.Schedule.Interval.Std(), true
}

// swap closes the current app and installs next in its place.
func (s *scheduler) swap(next *app) {
	if err := s.app.close(); err != nil {
		s.logger.Warn("failed to release previous resources", logging.Err(err))
	}
	s.app = next
}

// watchedConfigPath is the file the scheduler watches: the explicit path, or
// the default file when it exists.
func watchedConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(config.DefaultPath); err == nil {
		return config.DefaultPath
	}
	return ""
}

// configWatcher signals changes of one file. The parent directory is watched
// so editors that replace the file by rename are noticed too.
type configWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	changes chan struct{}
	done    chan struct{}
	logger  *slog.Logger
}

func watchConfig(path string, logger *slog.Logger) (*configWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	cw := &configWatcher{
		watcher: w,
		path:    abs,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go cw.loop()
	return cw, nil
}

// Changes delivers at most one pending notification; bursts of writes
// collapse into one reload.
func (cw *configWatcher) Changes() <-chan struct{} {
	return cw.changes
}

func (cw *configWatcher) Close() error {
	err := cw.watcher.Close()
	<-cw.done
	return err
}

func (cw *configWatcher) loop() {
	defer close(cw.done)
	for {
		select {
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != cw.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			cw.logger.Debug("config file changed", slog.String("path", cw.path), slog.String("op", ev.Op.String()))
			select {
			case cw.changes <- struct{}{}:
			default:
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("config watcher error", logging.Err(err))
		}
	}
}
