package sheetsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/teemow/inboxledger/internal/extract"
	"github.com/teemow/inboxledger/internal/logging"
	"github.com/teemow/inboxledger/internal/retry"
	"github.com/teemow/inboxledger/internal/sheets"
)

// Write strategies.
const (
	StrategyReplace    = "replace"
	StrategyAppendOnly = "append-only"
)

// KeyColumn correlates sheet rows with their source document.
const KeyColumn = extract.FieldDriveFileID

// Sheets is the spreadsheet capability the synchronizer needs. Both
// sheets.Client and sheets.Workbook implement it.
type Sheets interface {
	GetValues(ctx context.Context, rng string) ([][]string, error)
	UpdateValues(ctx context.Context, rng string, values [][]any) error
	AppendValues(ctx context.Context, rng string, values [][]any) (int64, error)
	TabID(ctx context.Context, tab string) (int64, error)
	DeleteRows(ctx context.Context, tabID int64, ranges []sheets.RowRange) error
}

// TabCreator is implemented by backends that can add a missing tab.
type TabCreator interface {
	CreateTab(ctx context.Context, tab string) (int64, error)
}

// Result describes one Replace call.
type Result struct {
	HeadersAdded int
	RowsDeleted  int
	RowsAppended int
}

// Synchronizer writes rows for one document at a time.
type Synchronizer struct {
	sheets Sheets
	logger *slog.Logger

	// Strategy is StrategyReplace or StrategyAppendOnly.
	Strategy string

	// Retry bounds the append call. Defaults to retry.Default.
	Retry retry.Policy

	// OnRetry is called after every failed append attempt that will be retried.
	OnRetry func(attempt uint, err error)
}

func New(s Sheets, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		sheets:   s,
		logger:   logging.WithService(logger, "sheetsync"),
		Strategy: StrategyReplace,
		Retry:    retry.Default,
	}
}

// ValidStrategy reports whether name is a known write strategy.
func ValidStrategy(name string) bool {
	return name == StrategyReplace || name == StrategyAppendOnly
}

// Replace makes rows the only rows in tab whose KeyColumn equals itemID.
func (s *Synchronizer) Replace(ctx context.Context, tab, itemID string, rows []*extract.Row) (*Result, error) {
	res := &Result{}
	if len(rows) == 0 {
		return res, nil
	}
	logger := s.logger.With(logging.Item(itemID), slog.String("tab", tab))

	tabID, err := s.tabID(ctx, tab)
	if err != nil {
		return nil, err
	}

	existing, err := s.readHeaders(ctx, tab)
	if err != nil {
		return nil, err
	}
	headers := ReconcileHeaders(existing, rows)
	if added := len(headers) - len(existing); added > 0 {
		if err := s.sheets.UpdateValues(ctx, sheets.HeaderRange(tab, len(headers)), [][]any{toCells(headers)}); err != nil {
			return nil, fmt.Errorf("failed to update headers of %s: %w", tab, err)
		}
		res.HeadersAdded = added
		logger.Info("added sheet columns", slog.Int("added", added), slog.Int("columns", len(headers)))
	}

	if s.Strategy != StrategyAppendOnly {
		conflicts, err := s.locate(ctx, tab, headers, itemID)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			if err := s.sheets.DeleteRows(ctx, tabID, DeleteRanges(conflicts)); err != nil {
				return nil, fmt.Errorf("failed to delete previous rows of %s: %w", itemID, err)
			}
			res.RowsDeleted = len(conflicts)
			logger.Info("deleted previous rows", slog.Int("rows", len(conflicts)))
		}
	}

	values := make([][]any, len(rows))
	for i, row := range rows {
		values[i] = Materialize(headers, row)
	}
	err = retry.Do(ctx, s.Retry, func(ctx context.Context) error {
		_, err := s.sheets.AppendValues(ctx, appendRange(tab), values)
		return err
	}, func(attempt uint, err error) {
		logger.Warn("sheet append failed, retrying",
			slog.Uint64("attempt", uint64(attempt)),
			slog.Uint64("max_attempts", uint64(s.Retry.Attempts)),
			logging.Err(err))
		if s.OnRetry != nil {
			s.OnRetry(attempt, err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append rows of %s: %w", itemID, err)
	}
	res.RowsAppended = len(values)
	return res, nil
}

// ExistingIDs returns the KeyColumn values already present in tab. A missing
// tab or key column yields an empty set.
func (s *Synchronizer) ExistingIDs(ctx context.Context, tab string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})

	if _, err := s.sheets.TabID(ctx, tab); err != nil {
		if errors.Is(err, sheets.ErrTabNotFound) {
			return ids, nil
		}
		return nil, err
	}
	headers, err := s.readHeaders(ctx, tab)
	if err != nil {
		return nil, err
	}
	col := indexOf(headers, KeyColumn)
	if col < 0 {
		return ids, nil
	}
	column, err := s.sheets.GetValues(ctx, sheets.ColumnRange(tab, col+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s column of %s: %w", KeyColumn, tab, err)
	}
	for i := 1; i < len(column); i++ {
		if len(column[i]) > 0 && column[i][0] != "" {
			ids[column[i][0]] = struct{}{}
		}
	}
	return ids, nil
}

func (s *Synchronizer) tabID(ctx context.Context, tab string) (int64, error) {
	id, err := s.sheets.TabID(ctx, tab)
	if err == nil {
		return id, nil
	}
	creator, ok := s.sheets.(TabCreator)
	if !errors.Is(err, sheets.ErrTabNotFound) || !ok {
		return 0, fmt.Errorf("failed to resolve tab %s: %w", tab, err)
	}
	id, err = creator.CreateTab(ctx, tab)
	if err != nil {
		return 0, err
	}
	s.logger.Info("created sheet tab", slog.String("tab", tab))
	return id, nil
}

func (s *Synchronizer) readHeaders(ctx context.Context, tab string) ([]string, error) {
	grid, err := s.sheets.GetValues(ctx, sheets.HeaderRow(tab))
	if err != nil {
		return nil, fmt.Errorf("failed to read headers of %s: %w", tab, err)
	}
	if len(grid) == 0 {
		return nil, nil
	}
	return grid[0], nil
}

// locate returns the 0-based indexes of data rows tagged with itemID.
func (s *Synchronizer) locate(ctx context.Context, tab string, headers []string, itemID string) ([]int64, error) {
	col := indexOf(headers, KeyColumn)
	if col < 0 {
		s.logger.Warn("sheet has no key column, appending only", slog.String("tab", tab), slog.String("column", KeyColumn))
		return nil, nil
	}
	column, err := s.sheets.GetValues(ctx, sheets.ColumnRange(tab, col+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s column of %s: %w", KeyColumn, tab, err)
	}
	var rows []int64
	for i := 1; i < len(column); i++ {
		if len(column[i]) > 0 && column[i][0] == itemID {
			rows = append(rows, int64(i))
		}
	}
	return rows, nil
}

// ReconcileHeaders keeps existing in order and appends the keys of rows that
// are not yet present, in the order they are first seen.
func ReconcileHeaders(existing []string, rows []*extract.Row) []string {
	headers := append([]string(nil), existing...)
	seen := make(map[string]struct{}, len(existing))
	for _, h := range existing {
		seen[h] = struct{}{}
	}
	for _, row := range rows {
		for _, k := range row.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			headers = append(headers, k)
		}
	}
	return headers
}

// Materialize lays row out in header order. Missing fields become "".
func Materialize(headers []string, row *extract.Row) []any {
	cells := make([]any, len(headers))
	for i, h := range headers {
		v, ok := row.Get(h)
		if !ok || v == nil {
			cells[i] = ""
			continue
		}
		cells[i] = v
	}
	return cells
}

// DeleteRanges turns 0-based row indexes into single-row ranges ordered from
// the bottom of the sheet up, so earlier deletions do not shift later ones.
func DeleteRanges(rows []int64) []sheets.RowRange {
	sorted := append([]int64(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })

	ranges := make([]sheets.RowRange, 0, len(sorted))
	for i, r := range sorted {
		if i > 0 && sorted[i-1] == r {
			continue
		}
		ranges = append(ranges, sheets.RowRange{Start: r, End: r + 1})
	}
	return ranges
}

func appendRange(tab string) string {
	return sheets.QuoteTab(tab) + "!A1"
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func indexOf(values []string, want string) int {
	for i, v := range values {
		if v == want {
			return i
		}
	}
	return -1
}
