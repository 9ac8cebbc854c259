package drive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/inboxledger/internal/instrumentation"
)

const (
	// FolderMimeType is the MIME type for Google Drive folders
	FolderMimeType = "application/vnd.google-apps.folder"

	// UploadChunkSize is the chunk size of resumable uploads.
	UploadChunkSize = 8 * googleapi.MinUploadChunkSize

	maxPageSize = 1000

	fileFields = "id, name, mimeType, size, createdTime, modifiedTime, webViewLink, parents, trashed"
)

// Client wraps the Google Drive API service
type Client struct {
	service *drive.Service
	account string // The account this client is associated with
	metrics *instrumentation.Metrics
}

// NewClient creates a Drive client. Authentication is supplied through opts.
func NewClient(ctx context.Context, account string, opts ...option.ClientOption) (*Client, error) {
	driveService, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	return &Client{
		service: driveService,
		account: account,
	}, nil
}

// Account returns the account name this client is associated with
func (c *Client) Account() string {
	return c.account
}

// SetMetrics records every API call of the client on m.
func (c *Client) SetMetrics(m *instrumentation.Metrics) {
	c.metrics = m
}

func (c *Client) observe(ctx context.Context, operation string, start time.Time, err error) {
	c.metrics.ObserveAPICall(ctx, instrumentation.ServiceDrive, operation, start, err)
}

// EscapeQuery escapes a value for use inside a single-quoted Drive query string.
func EscapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// UploadFile uploads a file to Google Drive. Content larger than
// UploadChunkSize is sent as a resumable upload.
func (c *Client) UploadFile(ctx context.Context, name string, content io.Reader, options *UploadOptions) (_ *FileInfo, err error) {
	if name == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if content == nil {
		return nil, fmt.Errorf("file content is required")
	}
	defer func(start time.Time) { c.observe(ctx, instrumentation.OperationUpload, start, err) }(time.Now())

	file := &drive.File{
		Name: name,
	}

	if options != nil {
		if len(options.ParentFolders) > 0 {
			file.Parents = options.ParentFolders
		}
		if options.Description != "" {
			file.Description = options.Description
		}
		if options.MimeType != "" {
			file.MimeType = options.MimeType
		}
	}

	mediaOptions := []googleapi.MediaOption{googleapi.ChunkSize(UploadChunkSize)}
	if file.MimeType != "" {
		mediaOptions = append(mediaOptions, googleapi.ContentType(file.MimeType))
	}

	driveFile, err := c.service.Files.Create(file).
		Context(ctx).
		Media(content, mediaOptions...).
		Fields(googleapi.Field(fileFields)).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	return convertToFileInfo(driveFile), nil
}

// ListFiles lists one page of files in Google Drive with optional filtering.
// Trashed files are excluded unless IncludeTrashed is set.
func (c *Client) ListFiles(ctx context.Context, options *ListOptions) (_ []*FileInfo, _ string, err error) {
	defer func(start time.Time) { c.observe(ctx, instrumentation.OperationList, start, err) }(time.Now())

	if options == nil {
		options = &ListOptions{}
	}

	call := c.service.Files.List().
		Context(ctx).
		Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")"))

	query := options.Query
	if !options.IncludeTrashed && !strings.Contains(query, "trashed") {
		if query != "" {
			query += " and "
		}
		query += "trashed=false"
	}
	if query != "" {
		call = call.Q(query)
	}
	if options.MaxResults > 0 {
		call = call.PageSize(int64(options.MaxResults))
	}
	if options.OrderBy != "" {
		call = call.OrderBy(options.OrderBy)
	}
	if options.PageToken != "" {
		call = call.PageToken(options.PageToken)
	}

	fileList, err := call.Do()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list files: %w", err)
	}

	files := make([]*FileInfo, len(fileList.Files))
	for i, f := range fileList.Files {
		files[i] = convertToFileInfo(f)
	}

	return files, fileList.NextPageToken, nil
}

// ListAll follows page tokens until the listing is exhausted.
func (c *Client) ListAll(ctx context.Context, query, orderBy string) ([]*FileInfo, error) {
	var all []*FileInfo
	opts := &ListOptions{Query: query, OrderBy: orderBy, MaxResults: maxPageSize}
	for {
		files, next, err := c.ListFiles(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, files...)
		if next == "" {
			return all, nil
		}
		opts.PageToken = next
	}
}

// FindFolder returns the first non-trashed folder called name directly under
// parentID, or nil if there is none.
func (c *Client) FindFolder(ctx context.Context, name, parentID string) (*FileInfo, error) {
	q := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", EscapeQuery(name), FolderMimeType)
	if parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", EscapeQuery(parentID))
	}
	return c.findOne(ctx, q)
}

// FindFile returns the first non-trashed, non-folder entry called name directly
// under parentID, or nil if there is none.
func (c *Client) FindFile(ctx context.Context, name, parentID string) (*FileInfo, error) {
	q := fmt.Sprintf("name='%s' and '%s' in parents and mimeType!='%s' and trashed=false",
		EscapeQuery(name), EscapeQuery(parentID), FolderMimeType)
	return c.findOne(ctx, q)
}

func (c *Client) findOne(ctx context.Context, q string) (*FileInfo, error) {
	files, _, err := c.ListFiles(ctx, &ListOptions{Query: q, MaxResults: 1})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return files[0], nil
}

// DownloadFile downloads the content of a file
func (c *Client) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}

	resp, err := c.service.Files.Get(fileID).
		Context(ctx).
		Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}

	return resp.Body, nil
}

// Download reads the whole content of a file into memory.
func (c *Client) Download(ctx context.Context, fileID string) (_ []byte, err error) {
	defer func(start time.Time) { c.observe(ctx, instrumentation.OperationDownload, start, err) }(time.Now())

	body, err := c.DownloadFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	return buf.Bytes(), nil
}

// CreateFolder creates a new folder in Google Drive
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (_ *FileInfo, err error) {
	if name == "" {
		return nil, fmt.Errorf("folder name is required")
	}
	defer func(start time.Time) { c.observe(ctx, instrumentation.OperationCreate, start, err) }(time.Now())

	file := &drive.File{
		Name:     name,
		MimeType: FolderMimeType,
	}

	if parentID != "" {
		file.Parents = []string{parentID}
	}

	driveFile, err := c.service.Files.Create(file).
		Context(ctx).
		Fields(googleapi.Field(fileFields)).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	return convertToFileInfo(driveFile), nil
}

// convertToFileInfo converts a Drive API File to our FileInfo type
func convertToFileInfo(f *drive.File) *FileInfo {
	fileInfo := &FileInfo{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		WebViewLink: f.WebViewLink,
		Parents:     f.Parents,
		Trashed:     f.Trashed,
	}

	// Parse timestamps
	if f.CreatedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
			fileInfo.CreatedTime = t
		}
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			fileInfo.ModifiedTime = t
		}
	}

	return fileInfo
}
