package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultPath is the JSON state file used when no DSN is configured.
const DefaultPath = "processed_state.json"

var (
	// ErrInvalidDSN is returned for state DSNs that cannot be turned into a backend.
	ErrInvalidDSN = errors.New("invalid state DSN")

	// ErrCorrupt marks a stored snapshot that exists but cannot be decoded.
	ErrCorrupt = errors.New("corrupt state snapshot")
)

// Snapshot is the persisted form of the processed sets.
type Snapshot struct {
	Emails []string `json:"emails"`
	PDFs   []string `json:"pdfs"`
}

// Backend loads and stores whole snapshots.
type Backend interface {
	// Load returns the stored snapshot, or nil if nothing was stored yet.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, snapshot *Snapshot) error

	Close() error
}

// OpenBackend builds a Backend from a DSN. An empty DSN selects the JSON file
// backend at DefaultPath.
func OpenBackend(dsn string) (Backend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewFileBackend(DefaultPath), nil
	}
	if !strings.Contains(dsn, "://") {
		return NewFileBackend(dsn), nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "file":
		path, err := dsnPath(parsed)
		if err != nil {
			return nil, err
		}
		return NewFileBackend(path), nil
	case "memory", "mem":
		return NewMemoryBackend(), nil
	case "sqlite", "sqlite3":
		path, err := dsnPath(parsed)
		if err != nil {
			return nil, err
		}
		return NewSQLiteBackend(path), nil
	case "postgres", "postgresql":
		return NewPostgresBackend(dsn)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDSN, parsed.Scheme)
	}
}

// dsnPath joins host and path so both sqlite://state.db and
// sqlite:///abs/state.db work.
func dsnPath(u *url.URL) (string, error) {
	path := u.Host + u.Path
	if u.Opaque != "" {
		path = u.Opaque
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: %s DSN has no path", ErrInvalidDSN, u.Scheme)
	}
	return path, nil
}

// FileBackend stores the snapshot as a JSON document, replacing it atomically.
type FileBackend struct {
	Path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: strings.TrimSpace(path)}
}

func (b *FileBackend) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file %s: %w", b.Path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, b.Path, err)
	}
	return &snapshot, nil
}

func (b *FileBackend) Save(_ context.Context, snapshot *Snapshot) error {
	if snapshot == nil {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	dir := filepath.Dir(b.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	tmp := b.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, b.Path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }

// MemoryBackend keeps a deep copy of the last saved snapshot.
type MemoryBackend struct {
	mu       sync.Mutex
	snapshot *Snapshot
	saves    int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load(_ context.Context) (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot == nil {
		return nil, nil
	}
	return cloneSnapshot(b.snapshot), nil
}

func (b *MemoryBackend) Save(_ context.Context, snapshot *Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot = cloneSnapshot(snapshot)
	b.saves++
	return nil
}

// Saves reports how many times Save was called.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func (b *MemoryBackend) Close() error { return nil }

func cloneSnapshot(s *Snapshot) *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{
		Emails: append([]string(nil), s.Emails...),
		PDFs:   append([]string(nil), s.PDFs...),
	}
}
