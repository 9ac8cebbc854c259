package gmail

import (
	"net/mail"
	"strings"
	"time"
)

// MessageRef identifies a message returned by a search.
type MessageRef struct {
	ID       string
	ThreadID string
}

// MessageMeta holds the headers the workflows need from a message.
type MessageMeta struct {
	ID      string
	From    string
	Subject string
	Date    string

	// Received is the internal Gmail timestamp.
	Received time.Time
}

// SenderAddress returns the bare address of the From header, lowercased.
func (m *MessageMeta) SenderAddress() string {
	return SenderAddress(m.From)
}

// AttachmentInfo represents an attachment's metadata
type AttachmentInfo struct {
	MessageID    string
	PartID       string
	AttachmentID string
	Filename     string
	MimeType     string
	Size         int64
}

// SenderAddress extracts the address from a header value such as
// `"ACME Billing" <billing@acme.test>`. Unparseable values are returned
// trimmed and lowercased.
func SenderAddress(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(addr.Address)
	}
	if i, j := strings.LastIndex(from, "<"), strings.LastIndex(from, ">"); i >= 0 && j > i {
		return strings.ToLower(strings.TrimSpace(from[i+1 : j]))
	}
	return strings.ToLower(from)
}
