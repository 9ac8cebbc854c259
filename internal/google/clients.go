package google

import (
	"context"
	"fmt"

	"google.golang.org/api/option"

	"github.com/teemow/inboxledger/internal/drive"
	"github.com/teemow/inboxledger/internal/gmail"
	"github.com/teemow/inboxledger/internal/instrumentation"
	"github.com/teemow/inboxledger/internal/sheets"
)

// Clients bundles the API clients for one account.
type Clients struct {
	Account string
	Gmail   *gmail.Client
	Drive   *drive.Client
	Sheets  *sheets.Client
}

// SetMetrics makes every client record its API calls on m.
func (c *Clients) SetMetrics(m *instrumentation.Metrics) {
	c.Gmail.SetMetrics(m)
	c.Drive.SetMetrics(m)
	if c.Sheets != nil {
		c.Sheets.SetMetrics(m)
	}
}

// Authenticate builds all clients for account. The Sheets client is bound to
// spreadsheetID and is nil when spreadsheetID is empty.
func (a *Authenticator) Authenticate(ctx context.Context, account, spreadsheetID string) (*Clients, error) {
	httpClient, err := a.HTTPClient(ctx, account)
	if err != nil {
		return nil, err
	}
	opt := option.WithHTTPClient(httpClient)

	gmailClient, err := gmail.NewClient(ctx, account, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail client: %w", err)
	}
	driveClient, err := drive.NewClient(ctx, account, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive client: %w", err)
	}

	clients := &Clients{Account: account, Gmail: gmailClient, Drive: driveClient}
	if spreadsheetID != "" {
		clients.Sheets, err = sheets.NewClient(ctx, spreadsheetID, opt)
		if err != nil {
			return nil, fmt.Errorf("failed to create Sheets client: %w", err)
		}
	}
	return clients, nil
}
