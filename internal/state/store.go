package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/teemow/inboxledger/internal/logging"
)

// Kind names one of the processed sets.
type Kind string

const (
	KindEmail    Kind = "emails"
	KindDocument Kind = "pdfs"
)

// Store tracks processed email and document ids. Every successful Mark call
// is persisted before it returns; ids are never removed.
type Store struct {
	backend Backend

	mu        sync.RWMutex
	emails    map[string]struct{}
	documents map[string]struct{}
}

// Open loads the current snapshot from backend. A backend with no stored
// snapshot yields an empty store.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	if backend == nil {
		return nil, errors.New("state backend is required")
	}
	snapshot, err := backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	return newStore(backend, snapshot), nil
}

// OpenLenient behaves like Open but starts from an empty store when the
// stored snapshot is corrupt. The next Mark call overwrites it.
func OpenLenient(ctx context.Context, backend Backend, logger *slog.Logger) (*Store, error) {
	store, err := Open(ctx, backend)
	if errors.Is(err, ErrCorrupt) {
		if logger != nil {
			logger.Error("discarding unreadable processed state", logging.Err(err))
		}
		return newStore(backend, nil), nil
	}
	return store, err
}

func newStore(backend Backend, snapshot *Snapshot) *Store {
	s := &Store{
		backend:   backend,
		emails:    make(map[string]struct{}),
		documents: make(map[string]struct{}),
	}
	if snapshot != nil {
		for _, id := range snapshot.Emails {
			if id != "" {
				s.emails[id] = struct{}{}
			}
		}
		for _, id := range snapshot.PDFs {
			if id != "" {
				s.documents[id] = struct{}{}
			}
		}
	}
	return s
}

// OpenDSN opens the backend named by dsn and loads it. Unless strict is set,
// a corrupt snapshot is logged and replaced with an empty one.
func OpenDSN(ctx context.Context, dsn string, strict bool, logger *slog.Logger) (*Store, error) {
	backend, err := OpenBackend(dsn)
	if err != nil {
		return nil, err
	}
	var store *Store
	if strict {
		store, err = Open(ctx, backend)
	} else {
		store, err = OpenLenient(ctx, backend, logger)
	}
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) HasEmail(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.emails[id]
	return ok
}

func (s *Store) HasDocument(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.documents[id]
	return ok
}

// MarkEmail records a message id and persists the new snapshot.
func (s *Store) MarkEmail(ctx context.Context, id string) error {
	return s.mark(ctx, KindEmail, id)
}

// MarkDocument records a Drive file id and persists the new snapshot.
func (s *Store) MarkDocument(ctx context.Context, id string) error {
	return s.mark(ctx, KindDocument, id)
}

func (s *Store) mark(ctx context.Context, kind Kind, id string) error {
	if id == "" {
		return fmt.Errorf("cannot mark empty %s id", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.emails
	if kind == KindDocument {
		set = s.documents
	}
	if _, ok := set[id]; ok {
		return nil
	}
	set[id] = struct{}{}

	if err := s.backend.Save(ctx, s.snapshotLocked()); err != nil {
		delete(set, id)
		return fmt.Errorf("failed to persist processed %s id %s: %w", kind, id, err)
	}
	return nil
}

// Counts returns the size of both sets.
func (s *Store) Counts() (emails, documents int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.emails), len(s.documents)
}

// Snapshot returns a sorted copy of the current sets.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) snapshotLocked() *Snapshot {
	return &Snapshot{
		Emails: sortedKeys(s.emails),
		PDFs:   sortedKeys(s.documents),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
