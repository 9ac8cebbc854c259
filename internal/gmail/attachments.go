package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxledger/internal/instrumentation"
)

const (
	// MaxAttachmentSize defines the maximum attachment size in bytes (25MB)
	MaxAttachmentSize = 25 * 1024 * 1024
)

// GetMessage retrieves a full Gmail message
func (c *Client) GetMessage(ctx context.Context, messageID string) (_ *gmail.Message, err error) {
	defer func(start time.Time) { c.observe(ctx, instrumentation.OperationGet, start, err) }(time.Now())

	msg, err := c.svc.Messages.Get(user, messageID).Context(ctx).Format("full").Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}

// ListAttachments extracts all attachments from a message
func (c *Client) ListAttachments(ctx context.Context, messageID string) ([]*AttachmentInfo, error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}
	msg, err := c.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return attachmentsOf(msg), nil
}

func attachmentsOf(msg *gmail.Message) []*AttachmentInfo {
	var attachments []*AttachmentInfo
	walkParts(msg.Payload, func(part *gmail.MessagePart) {
		if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
			attachments = append(attachments, &AttachmentInfo{
				MessageID:    msg.Id,
				PartID:       part.PartId,
				AttachmentID: part.Body.AttachmentId,
				Filename:     part.Filename,
				MimeType:     part.MimeType,
				Size:         part.Body.Size,
			})
		}
	})
	return attachments
}

// GetAttachment retrieves the content of an attachment
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) (_ []byte, err error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}
	if attachmentID == "" {
		return nil, fmt.Errorf("attachmentID is required")
	}
	defer func(start time.Time) { c.observe(ctx, instrumentation.OperationDownload, start, err) }(time.Now())

	attachment, err := c.svc.Messages.Attachments.Get(user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s: %w", attachmentID, err)
	}

	// Check size limit
	if attachment.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("attachment size %d exceeds maximum size %d", attachment.Size, MaxAttachmentSize)
	}

	return decodeBody(attachment.Data)
}

// decodeBody decodes Gmail's base64url payloads. Some producers omit padding
// or use the standard alphabet, so those are accepted too.
func decodeBody(data string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding} {
		if decoded, err := enc.DecodeString(data); err == nil {
			return decoded, nil
		}
	}
	return nil, fmt.Errorf("failed to decode attachment data")
}

// walkParts recursively walks through message parts
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}

	fn(part)

	for _, subpart := range part.Parts {
		walkParts(subpart, fn)
	}
}

// ValidateMimeType checks if a MIME type is in the allowed list
func ValidateMimeType(mimeType string, allowedTypes []string) bool {
	if len(allowedTypes) == 0 {
		return true // No restrictions if list is empty
	}

	for _, allowed := range allowedTypes {
		if mimeType == allowed {
			return true
		}
	}
	return false
}
