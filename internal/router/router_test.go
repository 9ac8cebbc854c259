package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxledger/internal/drive"
	"github.com/teemow/inboxledger/internal/logging"
)

// fakeDrive is an in-memory folder tree.
type fakeDrive struct {
	nextID  int
	entries map[string]*drive.FileInfo // id -> entry
	content map[string][]byte

	finds, creates, uploads int
	findErr                 error
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{entries: map[string]*drive.FileInfo{}, content: map[string][]byte{}}
}

func (f *fakeDrive) add(name, parent, mime string) *drive.FileInfo {
	f.nextID++
	e := &drive.FileInfo{ID: fmt.Sprintf("id-%d", f.nextID), Name: name, MimeType: mime, Parents: []string{parent}}
	f.entries[e.ID] = e
	return e
}

func (f *fakeDrive) find(name, parent string, folder bool) *drive.FileInfo {
	for _, e := range f.entries {
		if e.Name == name && e.Parents[0] == parent && (e.MimeType == drive.FolderMimeType) == folder {
			return e
		}
	}
	return nil
}

func (f *fakeDrive) FindFolder(_ context.Context, name, parentID string) (*drive.FileInfo, error) {
	f.finds++
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.find(name, parentID, true), nil
}

func (f *fakeDrive) CreateFolder(_ context.Context, name, parentID string) (*drive.FileInfo, error) {
	f.creates++
	return f.add(name, parentID, drive.FolderMimeType), nil
}

func (f *fakeDrive) FindFile(_ context.Context, name, parentID string) (*drive.FileInfo, error) {
	return f.find(name, parentID, false), nil
}

func (f *fakeDrive) UploadFile(_ context.Context, name string, content io.Reader, opts *drive.UploadOptions) (*drive.FileInfo, error) {
	f.uploads++
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	e := f.add(name, opts.ParentFolders[0], opts.MimeType)
	f.content[e.ID] = data
	return e, nil
}

func TestRouter_ResolveCreatesOnce(t *testing.T) {
	ctx := context.Background()
	fd := newFakeDrive()
	r := NewRouter(fd, logging.DiscardLogger().Logger())

	first, err := r.Resolve(ctx, "root", []string{"Gmail_Attachments", "invoice", "PDFs"})
	require.NoError(t, err)
	assert.Equal(t, 3, fd.creates)

	second, err := r.Resolve(ctx, "root", []string{"Gmail_Attachments", "invoice", "PDFs"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 3, fd.creates)
	assert.Equal(t, 3, fd.finds, "memoized segments should not be looked up again")

	// A fresh router in a later run finds the existing folders instead of creating.
	again, err := NewRouter(fd, nil).Resolve(ctx, "root", []string{"Gmail_Attachments", "invoice", "PDFs"})
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 3, fd.creates)
}

func TestRouter_ResolveSharesPrefix(t *testing.T) {
	ctx := context.Background()
	fd := newFakeDrive()
	r := NewRouter(fd, nil)

	pdfs, err := r.Resolve(ctx, "root", []string{"base", "PDFs"})
	require.NoError(t, err)
	images, err := r.Resolve(ctx, "root", []string{"base", "Images"})
	require.NoError(t, err)

	assert.NotEqual(t, pdfs, images)
	assert.Equal(t, 3, fd.creates)
	assert.Equal(t, fd.entries[pdfs].Parents, fd.entries[images].Parents)
}

func TestRouter_ResolveErrors(t *testing.T) {
	fd := newFakeDrive()
	fd.findErr = errors.New("rate limited")
	r := NewRouter(fd, nil)

	_, err := r.Resolve(context.Background(), "root", []string{"base"})
	assert.ErrorContains(t, err, "rate limited")

	_, err = NewRouter(newFakeDrive(), nil).Resolve(context.Background(), "", []string{" ", ""})
	assert.Error(t, err)
}

func TestWriter_SkipsExistingName(t *testing.T) {
	ctx := context.Background()
	fd := newFakeDrive()
	folder := fd.add("PDFs", "root", drive.FolderMimeType)
	w := NewWriter(fd)

	res, err := w.Write(ctx, folder.ID, "inv:42.pdf", []byte("%PDF"), "application/pdf")
	require.NoError(t, err)
	assert.True(t, res.Uploaded)
	assert.Equal(t, "inv_42.pdf", res.Name)
	assert.Equal(t, []byte("%PDF"), fd.content[res.FileID])

	again, err := w.Write(ctx, folder.ID, "inv:42.pdf", []byte("%PDF v2"), "application/pdf")
	require.NoError(t, err)
	assert.False(t, again.Uploaded)
	assert.Equal(t, res.FileID, again.FileID)
	assert.Equal(t, 1, fd.uploads)
}

func TestWriter_DefaultsContentType(t *testing.T) {
	fd := newFakeDrive()
	w := NewWriter(fd)

	res, err := w.Write(context.Background(), "folder", "blob", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", fd.entries[res.FileID].MimeType)

	_, err = w.Write(context.Background(), "", "blob", nil, "")
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	long := strings.Repeat("a/b", 50) + ".pdf"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean", "invoice.pdf", "invoice.pdf"},
		{"all forbidden", `a<b>c:d"e/f\g|h?i*j.pdf`, "a_b_c_d_e_f_g_h_i_j.pdf"},
		{"long with slash", long, strings.Repeat("a_b", 32) + ".pdf"},
		{"long without extension", strings.Repeat("x", 120), strings.Repeat("x", 100)},
		{"exactly limit", strings.Repeat("y", 96) + ".pdf", strings.Repeat("y", 96) + ".pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeFilename(tt.in)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len([]rune(got)), MaxFilenameLength)
			assert.NotContains(t, got, "/")
		})
	}
}

func TestSanitizeFilename_Multibyte(t *testing.T) {
	in := strings.Repeat("ü", 150) + ".pdf"
	got := SanitizeFilename(in)
	assert.Equal(t, MaxFilenameLength, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}

func TestClassifyExtension(t *testing.T) {
	tests := map[string]string{
		"invoice.PDF":  "PDFs",
		"notes.docx":   "Documents",
		"ledger.csv":   "Spreadsheets",
		"scan.jpeg":    "Images",
		"deck.pptx":    "Presentations",
		"bundle.7z":    "Archives",
		"README":       "Other",
		"weird.tar.gz": "Other",
	}
	for in, want := range tests {
		assert.Equal(t, want, ClassifyExtension(in), in)
	}
}

func TestPathStrategies(t *testing.T) {
	received := time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)
	a := Attachment{Filename: "grn.pdf", Sender: "billing@acme.test", Received: received}

	kw, err := NewPathStrategy("", "grn,invoice")
	require.NoError(t, err)
	assert.Equal(t, []string{"grn,invoice", "PDFs"}, kw.Segments(a))

	all, err := NewPathStrategy(LayoutKeywordType, "")
	require.NoError(t, err)
	assert.Equal(t, []string{AllAttachmentsFolder, "PDFs"}, all.Segments(a))

	sd, err := NewPathStrategy("sender-date", "ignored")
	require.NoError(t, err)
	assert.Equal(t, []string{"billing@acme.test", "2024-02"}, sd.Segments(a))
	assert.Equal(t, []string{"unknown-sender", "undated"}, sd.Segments(Attachment{Filename: "x.pdf"}))

	_, err = NewPathStrategy("by-color", "")
	assert.Error(t, err)
}

func TestFilter_Allow(t *testing.T) {
	f := Filter{Extensions: []string{".pdf", "XLSX"}, MimeTypes: []string{"application/pdf", "application/octet-stream"}, MaxBytes: 1000}

	ok, _ := f.Allow("a.pdf", "application/pdf", 10)
	assert.True(t, ok)

	ok, reason := f.Allow("a.png", "application/pdf", 10)
	assert.False(t, ok)
	assert.Contains(t, reason, "extension")

	ok, reason = f.Allow("a.xlsx", "application/vnd.ms-excel", 10)
	assert.False(t, ok)
	assert.Contains(t, reason, "MIME")

	ok, reason = f.Allow("a.pdf", "application/pdf", 1001)
	assert.False(t, ok)
	assert.Contains(t, reason, "size")

	ok, _ = Filter{}.Allow("anything.bin", "x/y", 1<<40)
	assert.True(t, ok)
}
