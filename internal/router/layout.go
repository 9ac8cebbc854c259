package router

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	// DefaultBaseFolder is created under the configured Drive root.
	DefaultBaseFolder = "Gmail_Attachments"

	// AllAttachmentsFolder replaces an empty search term in the keyword layout.
	AllAttachmentsFolder = "all-attachments"

	LayoutKeywordType = "keyword-type"
	LayoutSenderDate  = "sender-date"

	unknownSender = "unknown-sender"
)

// Attachment describes a file to place.
type Attachment struct {
	Filename string
	MimeType string
	Sender   string
	Received time.Time
}

// PathStrategy returns the folder names, below the base folder, an attachment goes into.
type PathStrategy interface {
	Segments(a Attachment) []string
}

// KeywordTypeLayout groups by search term, then by file type bucket.
type KeywordTypeLayout struct {
	SearchTerm string
}

func (l KeywordTypeLayout) Segments(a Attachment) []string {
	term := strings.TrimSpace(l.SearchTerm)
	if term == "" {
		term = AllAttachmentsFolder
	}
	return []string{SanitizeFilename(term), ClassifyExtension(a.Filename)}
}

// SenderDateLayout groups by sender address, then by month received.
type SenderDateLayout struct{}

func (SenderDateLayout) Segments(a Attachment) []string {
	sender := strings.TrimSpace(a.Sender)
	if sender == "" {
		sender = unknownSender
	}
	month := "undated"
	if !a.Received.IsZero() {
		month = a.Received.UTC().Format("2006-01")
	}
	return []string{SanitizeFilename(sender), month}
}

// NewPathStrategy returns the layout named by layout. An empty name selects
// the keyword-type layout.
func NewPathStrategy(layout, searchTerm string) (PathStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(layout)) {
	case "", LayoutKeywordType:
		return KeywordTypeLayout{SearchTerm: searchTerm}, nil
	case LayoutSenderDate:
		return SenderDateLayout{}, nil
	default:
		return nil, fmt.Errorf("unknown folder layout %q", layout)
	}
}

var typeBuckets = map[string]string{
	"pdf":  "PDFs",
	"doc":  "Documents",
	"docx": "Documents",
	"txt":  "Documents",
	"xls":  "Spreadsheets",
	"xlsx": "Spreadsheets",
	"csv":  "Spreadsheets",
	"jpg":  "Images",
	"jpeg": "Images",
	"png":  "Images",
	"gif":  "Images",
	"ppt":  "Presentations",
	"pptx": "Presentations",
	"zip":  "Archives",
	"rar":  "Archives",
	"7z":   "Archives",
}

// ClassifyExtension maps a filename to its type bucket folder name.
func ClassifyExtension(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if bucket, ok := typeBuckets[ext]; ok {
		return bucket
	}
	return "Other"
}
