// Package selector turns search criteria into Gmail and Drive queries and
// lists the matching candidates. It never consults processed state; filtering
// already-processed items is the caller's job.
package selector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teemow/inboxledger/internal/drive"
	"github.com/teemow/inboxledger/internal/gmail"
)

const (
	gmailDateLayout = "2006/01/02"
	pdfMimeType     = "application/pdf"
	newestFirst     = "createdTime desc"
)

// Mail is the message search capability.
type Mail interface {
	Search(ctx context.Context, query string, maxResults int) ([]gmail.MessageRef, error)
}

// Files is the file listing capability.
type Files interface {
	ListAll(ctx context.Context, query, orderBy string) ([]*drive.FileInfo, error)
}

// EmailCriteria selects messages with attachments.
type EmailCriteria struct {
	Sender     string
	SearchTerm string
	DaysBack   int
	MaxResults int
}

// DocumentCriteria selects PDFs in one Drive folder.
type DocumentCriteria struct {
	FolderID string
	DaysBack int
	MaxFiles int
}

// EmailCandidate is a message that matched the email query.
type EmailCandidate struct {
	ID       string
	ThreadID string
}

// DocumentCandidate is a PDF that matched the document query.
type DocumentCandidate struct {
	ID          string
	Name        string
	CreatedTime time.Time
}

// Selector runs candidate queries.
type Selector struct {
	Mail  Mail
	Files Files
	Now   func() time.Time
}

// New returns a Selector using the wall clock.
func New(mail Mail, files Files) *Selector {
	return &Selector{Mail: mail, Files: files, Now: time.Now}
}

// Keywords splits a comma-separated search term into trimmed, non-empty
// keywords. A term without commas is a single phrase.
func Keywords(term string) []string {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	if !strings.Contains(term, ",") {
		return []string{term}
	}
	var out []string
	for _, k := range strings.Split(term, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// KeywordClause renders the search term for a Gmail query: `"phrase"` for a
// single phrase, `("a" OR "b")` for a comma-separated list, "" when empty.
func KeywordClause(term string) string {
	keywords := Keywords(term)
	if len(keywords) == 0 {
		return ""
	}
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = quote(k)
	}
	if !strings.Contains(term, ",") {
		return quoted[0]
	}
	return "(" + strings.Join(quoted, " OR ") + ")"
}

// BuildEmailQuery renders the Gmail query for c. The date window starts
// DaysBack days before now; DaysBack <= 0 disables it.
func BuildEmailQuery(c EmailCriteria, now time.Time) string {
	parts := []string{"has:attachment"}
	if sender := strings.TrimSpace(c.Sender); sender != "" {
		parts = append(parts, "from:"+quote(sender))
	}
	if clause := KeywordClause(c.SearchTerm); clause != "" {
		parts = append(parts, clause)
	}
	if c.DaysBack > 0 {
		start := now.AddDate(0, 0, -c.DaysBack)
		parts = append(parts, "after:"+start.Format(gmailDateLayout))
	}
	return strings.Join(parts, " ")
}

// BuildDocumentQuery renders the Drive query for c. The window starts at UTC
// midnight DaysBack-1 days before now, so DaysBack=1 means "today".
func BuildDocumentQuery(c DocumentCriteria, now time.Time) string {
	q := fmt.Sprintf("'%s' in parents and mimeType='%s' and trashed=false", drive.EscapeQuery(c.FolderID), pdfMimeType)
	if c.DaysBack > 0 {
		start := now.UTC().AddDate(0, 0, -(c.DaysBack - 1))
		q += fmt.Sprintf(" and createdTime >= '%sT00:00:00Z'", start.Format("2006-01-02"))
	}
	return q
}

// FindEmailCandidates lists messages matching c, newest first, capped at
// c.MaxResults. It returns the query it ran for logging.
func (s *Selector) FindEmailCandidates(ctx context.Context, c EmailCriteria) ([]EmailCandidate, string, error) {
	query := BuildEmailQuery(c, s.now())
	refs, err := s.Mail.Search(ctx, query, c.MaxResults)
	if err != nil {
		return nil, query, fmt.Errorf("failed to search mail: %w", err)
	}
	candidates := make([]EmailCandidate, 0, len(refs))
	for _, r := range refs {
		candidates = append(candidates, EmailCandidate{ID: r.ID, ThreadID: r.ThreadID})
	}
	if c.MaxResults > 0 && len(candidates) > c.MaxResults {
		candidates = candidates[:c.MaxResults]
	}
	return candidates, query, nil
}

// FindDocumentCandidates lists all PDFs matching c, newest first. MaxFiles
// caps the result after listing.
func (s *Selector) FindDocumentCandidates(ctx context.Context, c DocumentCriteria) ([]DocumentCandidate, string, error) {
	if c.FolderID == "" {
		return nil, "", fmt.Errorf("document folder ID is required")
	}
	query := BuildDocumentQuery(c, s.now())
	files, err := s.Files.ListAll(ctx, query, newestFirst)
	if err != nil {
		return nil, query, fmt.Errorf("failed to list documents: %w", err)
	}
	candidates := make([]DocumentCandidate, 0, len(files))
	for _, f := range files {
		candidates = append(candidates, DocumentCandidate{ID: f.ID, Name: f.Name, CreatedTime: f.CreatedTime})
	}
	if c.MaxFiles > 0 && len(candidates) > c.MaxFiles {
		candidates = candidates[:c.MaxFiles]
	}
	return candidates, query, nil
}

func (s *Selector) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "") + `"`
}
