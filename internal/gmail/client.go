package gmail

import (
	"context"
	"fmt"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxledger/internal/instrumentation"
)

const (
	user = "me"

	// maxPageSize is the largest page the messages.list endpoint returns.
	maxPageSize = 500
)

// Client wraps the Gmail Users service
type Client struct {
	svc     *gmail.UsersService
	account string // The account this client is associated with
	metrics *instrumentation.Metrics
}

// NewClient creates a Gmail client. Authentication is supplied through opts,
// usually option.WithHTTPClient with an OAuth2 client.
func NewClient(ctx context.Context, account string, opts ...option.ClientOption) (*Client, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{svc: svc.Users, account: account}, nil
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
	c.metrics.ObserveAPICall(ctx, instrumentation.ServiceGmail, operation, start, err)
}

// Search lists messages matching the query, newest first, making multiple
// API calls if necessary. maxResults <= 0 means no limit.
func (c *Client) Search(ctx context.Context, q string, maxResults int) (_ []MessageRef, err error) {
	defer func(start time.Time) { c.observe(ctx, instrumentation.OperationSearch, start, err) }(time.Now())

	var refs []MessageRef
	pageToken := ""

	for {
		pageSize := maxPageSize
		if maxResults > 0 {
			remaining := maxResults - len(refs)
			if remaining <= 0 {
				break
			}
			if remaining < pageSize {
				pageSize = remaining
			}
		}

		req := c.svc.Messages.List(user).Context(ctx).Q(q).MaxResults(int64(pageSize))
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		res, err := req.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to search messages: %w", err)
		}
		for _, m := range res.Messages {
			refs = append(refs, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
		}

		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	if maxResults > 0 && len(refs) > maxResults {
		refs = refs[:maxResults]
	}
	return refs, nil
}

// GetMetadata fetches the From, Subject and Date headers of a message.
func (c *Client) GetMetadata(ctx context.Context, messageID string) (_ *MessageMeta, err error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}
	defer func(start time.Time) { c.observe(ctx, instrumentation.OperationGet, start, err) }(time.Now())

	msg, err := c.svc.Messages.Get(user, messageID).
		Context(ctx).
		Format("metadata").
		MetadataHeaders("From", "Subject", "Date").
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}

	meta := &MessageMeta{ID: msg.Id}
	if msg.InternalDate > 0 {
		meta.Received = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				meta.From = h.Value
			case "Subject":
				meta.Subject = h.Value
			case "Date":
				meta.Date = h.Value
			}
		}
	}
	return meta, nil
}
