package sheets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/teemow/inboxledger/internal/instrumentation"
)

const (
	valueInputOption  = "USER_ENTERED"
	insertDataOption  = "INSERT_ROWS"
	majorDimensionRow = "ROWS"
)

// ErrTabNotFound is returned when a spreadsheet has no tab with the requested title.
var ErrTabNotFound = errors.New("sheet tab not found")

// RowRange is a half-open, 0-based range of row indexes [Start, End).
type RowRange struct {
	Start int64
	End   int64
}

// Client wraps the Sheets API for a single spreadsheet.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	metrics       *instrumentation.Metrics

	mu     sync.Mutex
	tabIDs map[string]int64
}

// NewClient creates a Sheets client bound to spreadsheetID.
func NewClient(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Client, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is required")
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, tabIDs: make(map[string]int64)}, nil
}

// SpreadsheetID returns the spreadsheet this client writes to.
func (c *Client) SpreadsheetID() string {
	return c.spreadsheetID
}

// SetMetrics records every API call of the client on m.
func (c *Client) SetMetrics(m *instrumentation.Metrics) {
	c.metrics = m
}

func (c *Client) observe(ctx context.Context, operation string, start time.Time, err error) {
	c.metrics.ObserveAPICall(ctx, instrumentation.ServiceSheets, operation, start, err)
}

// GetValues reads the formatted values of rng, row-major. Trailing empty
// cells are omitted by the API, so rows may be ragged.
func (c *Client) GetValues(ctx context.Context, rng string) (_ [][]string, err error) {
	defer func(start time.Time) { c.observe(ctx, instrumentation.OperationGet, start, err) }(time.Now())

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		Context(ctx).
		MajorDimension(majorDimensionRow).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", rng, err)
	}
	return stringRows(resp.Values), nil
}

// UpdateValues overwrites rng with values.
func (c *Client) UpdateValues(ctx context.Context, rng string, values [][]any) (err error) {
	defer func(start time.Time) { c.observe(ctx, instrumentation.OperationUpdate, start, err) }(time.Now())

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &sheets.ValueRange{
		MajorDimension: majorDimensionRow,
		Values:         values,
	}).Context(ctx).ValueInputOption(valueInputOption).Do()
	if err != nil {
		return fmt.Errorf("failed to update range %s: %w", rng, err)
	}
	return nil
}

// AppendValues inserts values after the last row of the table in rng and
// returns the number of updated cells.
func (c *Client) AppendValues(ctx context.Context, rng string, values [][]any) (_ int64, err error) {
	defer func(start time.Time) { c.observe(ctx, instrumentation.OperationAppend, start, err) }(time.Now())

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &sheets.ValueRange{
		MajorDimension: majorDimensionRow,
		Values:         values,
	}).Context(ctx).
		ValueInputOption(valueInputOption).
		InsertDataOption(insertDataOption).
		Do()
	if err != nil {
		return 0, fmt.Errorf("failed to append to %s: %w", rng, err)
	}
	if resp.Updates == nil {
		return 0, nil
	}
	return resp.Updates.UpdatedCells, nil
}

// TabID resolves a tab title to its numeric sheet id.
func (c *Client) TabID(ctx context.Context, tab string) (int64, error) {
	c.mu.Lock()
	id, ok := c.tabIDs[tab]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	start := time.Now()
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Context(ctx).
		Fields("sheets.properties(sheetId,title)").
		Do()
	c.observe(ctx, instrumentation.OperationGet, start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to get spreadsheet metadata: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.tabIDs[s.Properties.Title] = s.Properties.SheetId
		}
	}
	if id, ok := c.tabIDs[tab]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrTabNotFound, tab)
}

// CreateTab adds a tab and returns its sheet id.
func (c *Client) CreateTab(ctx context.Context, tab string) (_ int64, err error) {
	defer func(start time.Time) { c.observe(ctx, instrumentation.OperationCreate, start, err) }(time.Now())

	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: tab}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to create tab %s: %w", tab, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("failed to create tab %s: empty reply", tab)
	}
	id := resp.Replies[0].AddSheet.Properties.SheetId

	c.mu.Lock()
	c.tabIDs[tab] = id
	c.mu.Unlock()
	return id, nil
}

// DeleteRows removes the given row ranges in one batch. Ranges are applied in
// the order given, so callers pass them from the bottom of the sheet up.
func (c *Client) DeleteRows(ctx context.Context, tabID int64, ranges []RowRange) (err error) {
	if len(ranges) == 0 {
		return nil
	}
	defer func(start time.Time) { c.observe(ctx, instrumentation.OperationDelete, start, err) }(time.Now())

	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: DeleteRequests(tabID, ranges),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to delete %d row ranges: %w", len(ranges), err)
	}
	return nil
}

// DeleteRequests builds one deleteDimension request per range.
func DeleteRequests(tabID int64, ranges []RowRange) []*sheets.Request {
	requests := make([]*sheets.Request, 0, len(ranges))
	for _, r := range ranges {
		requests = append(requests, &sheets.Request{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    tabID,
					Dimension:  majorDimensionRow,
					StartIndex: r.Start,
					EndIndex:   r.End,
					// sheetId 0 is the first tab and must still be sent.
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		})
	}
	return requests
}

func stringRows(values [][]any) [][]string {
	rows := make([][]string, len(values))
	for i, row := range values {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			if v == nil {
				continue
			}
			rows[i][j] = fmt.Sprint(v)
		}
	}
	return rows
}
