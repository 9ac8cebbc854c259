package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/teemow/inboxledger/internal/drive"
	"github.com/teemow/inboxledger/internal/logging"
)

// Folders is the folder lookup and creation capability.
type Folders interface {
	FindFolder(ctx context.Context, name, parentID string) (*drive.FileInfo, error)
	CreateFolder(ctx context.Context, name, parentID string) (*drive.FileInfo, error)
}

// Router resolves folder paths to ids with find-or-create semantics.
type Router struct {
	folders Folders
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

func NewRouter(folders Folders, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		folders: folders,
		logger:  logger,
		cache:   make(map[string]string),
	}
}

// Resolve walks segments below rootID and returns the id of the last folder.
// An empty rootID starts at the Drive root. Empty segments are skipped.
func (r *Router) Resolve(ctx context.Context, rootID string, segments []string) (string, error) {
	parent := rootID
	for _, name := range segments {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, err := r.resolveOne(ctx, parent, name)
		if err != nil {
			return "", err
		}
		parent = id
	}
	if parent == "" {
		return "", fmt.Errorf("no folder to resolve")
	}
	return parent, nil
}

func (r *Router) resolveOne(ctx context.Context, parentID, name string) (string, error) {
	key := parentID + "\x00" + name

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.cache[key]; ok {
		return id, nil
	}

	existing, err := r.folders.FindFolder(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("failed to look up folder %q: %w", name, err)
	}
	if existing != nil {
		r.cache[key] = existing.ID
		return existing.ID, nil
	}

	created, err := r.folders.CreateFolder(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("failed to create folder %q: %w", name, err)
	}
	r.logger.Info("created folder",
		logging.Operation("drive.create_folder"),
		slog.String("folder", name),
		slog.String("parent_id", parentID),
		slog.String("folder_id", created.ID))
	r.cache[key] = created.ID
	return created.ID, nil
}
