package cmd

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxledger/internal/config"
)

func TestApplyScheduleFlags(t *testing.T) {
	cfg := config.DefaultConfig()
	applyScheduleFlags(cfg, scheduleFlags{
		workflow: config.WorkflowDocuments,
		interval: 15 * time.Minute,
		listen:   "127.0.0.1:8080",
	})

	assert.Equal(t, config.WorkflowDocuments, cfg.Schedule.Workflow)
	assert.Equal(t, 15*time.Minute, cfg.Schedule.Interval.Std())
	assert.Equal(t, "127.0.0.1:8080", cfg.Schedule.ListenAddr)
}

func TestApplyScheduleFlagsKeepsDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	applyScheduleFlags(cfg, scheduleFlags{})

	assert.Equal(t, config.WorkflowCombined, cfg.Schedule.Workflow)
	assert.Equal(t, time.Hour, cfg.Schedule.Interval.Std())
	assert.Equal(t, ":9090", cfg.Schedule.ListenAddr)
}

func TestWatchedConfigPathPrefersExplicit(t *testing.T) {
	assert.Equal(t, "/etc/inboxledger.toml", watchedConfigPath("/etc/inboxledger.toml"))
}

func TestWatchConfigSignalsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inboxledger.toml")
	require.NoError(t, os.WriteFile(path, []byte("account = \"a\"\n"), 0o600))

	w, err := watchConfig(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer w.Close()

	// Other files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0o600))
	select {
	case <-w.Changes():
		t.Fatal("unexpected change for another file")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("account = \"b\"\n"), 0o600))
	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signalled")
	}
}

func TestSchedulerClosesEachAppOnce(t *testing.T) {
	tests := []struct {
		name    string
		reloads []string
		want    []string
	}{
		{name: "no reload", want: []string{"first"}},
		{name: "one reload", reloads: []string{"second"}, want: []string{"first", "second"}},
		{name: "two reloads", reloads: []string{"second", "third"}, want: []string{"first", "second", "third"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var closed []string
			tracked := func(name string) *app {
				return &app{closers: []func() error{func() error {
					closed = append(closed, name)
					return nil
				}}}
			}

			s := &scheduler{app: tracked("first"), logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
			func() {
				defer s.close()
				for _, name := range tt.reloads {
					s.swap(tracked(name))
				}
			}()
			assert.Equal(t, tt.want, closed)
		})
	}
}

func TestSchedulerSwapKeepsGoingWhenCloseFails(t *testing.T) {
	failing := &app{closers: []func() error{func() error { return errors.New("database is locked") }}}
	next := &app{}

	s := &scheduler{app: failing, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	s.swap(next)
	assert.Same(t, next, s.app)
}
