package router

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/teemow/inboxledger/internal/drive"
	"github.com/teemow/inboxledger/internal/gmail"
)

const defaultContentType = "application/octet-stream"

// Uploader is the file existence check and upload capability.
type Uploader interface {
	FindFile(ctx context.Context, name, parentID string) (*drive.FileInfo, error)
	UploadFile(ctx context.Context, name string, content io.Reader, options *drive.UploadOptions) (*drive.FileInfo, error)
}

// WriteResult reports what Write did. Uploaded is false when a file with the
// same name was already present; FileID then refers to that file.
type WriteResult struct {
	Name     string
	FileID   string
	Uploaded bool
}

// Writer delivers attachment bytes into a folder.
type Writer struct {
	files Uploader
}

func NewWriter(files Uploader) *Writer {
	return &Writer{files: files}
}

// Write sanitizes filename and uploads data into folderID unless a file with
// that name already exists there.
func (w *Writer) Write(ctx context.Context, folderID, filename string, data []byte, contentType string) (*WriteResult, error) {
	if folderID == "" {
		return nil, fmt.Errorf("destination folder is required")
	}
	name := SanitizeFilename(filename)
	if name == "" {
		return nil, fmt.Errorf("attachment has no filename")
	}

	existing, err := w.files.FindFile(ctx, name, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing %s: %w", name, err)
	}
	if existing != nil {
		return &WriteResult{Name: name, FileID: existing.ID}, nil
	}

	if contentType == "" {
		contentType = defaultContentType
	}
	uploaded, err := w.files.UploadFile(ctx, name, bytes.NewReader(data), &drive.UploadOptions{
		ParentFolders: []string{folderID},
		MimeType:      contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return &WriteResult{Name: name, FileID: uploaded.ID, Uploaded: true}, nil
}

// Filter restricts which attachments are delivered. Zero values allow everything.
type Filter struct {
	Extensions []string
	MimeTypes  []string
	MaxBytes   int64
}

// Allow reports whether an attachment passes the filter and, if not, why.
func (f Filter) Allow(filename, mimeType string, size int64) (bool, string) {
	if len(f.Extensions) > 0 {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
		ok := false
		for _, allowed := range f.Extensions {
			if strings.ToLower(strings.TrimPrefix(allowed, ".")) == ext {
				ok = true
				break
			}
		}
		if !ok {
			return false, fmt.Sprintf("extension %q not allowed", ext)
		}
	}
	if !gmail.ValidateMimeType(mimeType, f.MimeTypes) {
		return false, fmt.Sprintf("MIME type %q not allowed", mimeType)
	}
	if f.MaxBytes > 0 && size > f.MaxBytes {
		return false, fmt.Sprintf("size %d exceeds limit %d", size, f.MaxBytes)
	}
	return true, ""
}
