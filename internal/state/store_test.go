package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxledger/internal/logging"
)

type failingBackend struct {
	MemoryBackend
	saveErr error
}

func (b *failingBackend) Save(ctx context.Context, s *Snapshot) error {
	if b.saveErr != nil {
		return b.saveErr
	}
	return b.MemoryBackend.Save(ctx, s)
}

func TestStore_MarkPersistsImmediately(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "processed_state.json")

	store, err := Open(ctx, NewFileBackend(path))
	require.NoError(t, err)

	require.NoError(t, store.MarkEmail(ctx, "m2"))
	require.NoError(t, store.MarkEmail(ctx, "m1"))
	require.NoError(t, store.MarkDocument(ctx, "f1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"emails":["m1","m2"],"pdfs":["f1"]}`, string(data))

	reopened, err := Open(ctx, NewFileBackend(path))
	require.NoError(t, err)
	assert.True(t, reopened.HasEmail("m1"))
	assert.True(t, reopened.HasEmail("m2"))
	assert.True(t, reopened.HasDocument("f1"))
	assert.False(t, reopened.HasDocument("m1"))
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	store, err := Open(context.Background(), NewFileBackend(filepath.Join(t.TempDir(), "none.json")))
	require.NoError(t, err)

	emails, docs := store.Counts()
	assert.Zero(t, emails)
	assert.Zero(t, docs)
}

func TestStore_CorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(context.Background(), NewFileBackend(path))
	assert.ErrorIs(t, err, ErrCorrupt)

	store, err := OpenLenient(context.Background(), NewFileBackend(path), logging.DiscardLogger().Logger())
	require.NoError(t, err)
	emails, docs := store.Counts()
	assert.Zero(t, emails+docs)

	require.NoError(t, store.MarkEmail(context.Background(), "m1"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"emails":["m1"],"pdfs":[]}`, string(data))
}

func TestStore_DuplicateMarkDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store, err := Open(ctx, backend)
	require.NoError(t, err)

	require.NoError(t, store.MarkDocument(ctx, "f1"))
	require.NoError(t, store.MarkDocument(ctx, "f1"))

	assert.Equal(t, 1, backend.Saves())
	_, docs := store.Counts()
	assert.Equal(t, 1, docs)
}

func TestStore_FailedSaveLeavesIdUnmarked(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{saveErr: errors.New("disk full")}
	store, err := Open(ctx, backend)
	require.NoError(t, err)

	err = store.MarkEmail(ctx, "m1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, store.HasEmail("m1"))
}

func TestStore_RejectsEmptyID(t *testing.T) {
	store, err := Open(context.Background(), NewMemoryBackend())
	require.NoError(t, err)
	assert.Error(t, store.MarkEmail(context.Background(), ""))
}

func TestStore_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	backend := NewSQLiteBackend(path)
	store, err := Open(ctx, backend)
	require.NoError(t, err)
	require.NoError(t, store.MarkEmail(ctx, "m1"))
	require.NoError(t, store.MarkDocument(ctx, "f1"))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, NewSQLiteBackend(path))
	require.NoError(t, err)
	defer reopened.Close()

	assert.True(t, reopened.HasEmail("m1"))
	assert.True(t, reopened.HasDocument("f1"))
	assert.Equal(t, &Snapshot{Emails: []string{"m1"}, PDFs: []string{"f1"}}, reopened.Snapshot())
}

func TestOpenBackend(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		want    any
		wantErr bool
	}{
		{name: "empty uses default file", dsn: "", want: &FileBackend{}},
		{name: "bare path", dsn: "state/processed.json", want: &FileBackend{}},
		{name: "file scheme", dsn: "file:///tmp/state.json", want: &FileBackend{}},
		{name: "memory", dsn: "memory://", want: &MemoryBackend{}},
		{name: "sqlite", dsn: "sqlite:///tmp/state.db", want: &SQLBackend{}},
		{name: "postgres", dsn: "postgres://user@localhost/db?sslmode=disable", want: &SQLBackend{}},
		{name: "unknown scheme", dsn: "redis://localhost", wantErr: true},
		{name: "sqlite without path", dsn: "sqlite://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := OpenBackend(tt.dsn)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDSN)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, backend)
		})
	}
}

func TestOpenBackend_FilePaths(t *testing.T) {
	backend, err := OpenBackend("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPath, backend.(*FileBackend).Path)

	backend, err = OpenBackend("file:///var/lib/inboxledger/state.json")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/inboxledger/state.json", backend.(*FileBackend).Path)
}
