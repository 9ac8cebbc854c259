package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"
)

const defaultSheetName = "Sheet1"

// Workbook implements the spreadsheet operations on a local .xlsx file.
// Tab ids are sheet indexes. Every mutation is saved to disk before it returns.
type Workbook struct {
	path string

	mu    sync.Mutex
	file  *excelize.File
	fresh bool
}

// OpenWorkbook opens path, creating an empty workbook if it does not exist.
func OpenWorkbook(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Workbook{path: path, file: excelize.NewFile(), fresh: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	return &Workbook{path: path, file: f}, nil
}

// Path returns the file the workbook saves to.
func (w *Workbook) Path() string {
	return w.path
}

func (w *Workbook) GetValues(_ context.Context, rng string) ([][]string, error) {
	g, err := ParseRange(rng)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if idx, _ := w.file.GetSheetIndex(g.Tab); idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrTabNotFound, g.Tab)
	}
	rows, err := w.file.GetRows(g.Tab)
	if err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", rng, err)
	}
	return sliceGrid(rows, g), nil
}

func (w *Workbook) UpdateValues(_ context.Context, rng string, values [][]any) error {
	g, err := ParseRange(rng)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureTab(g.Tab); err != nil {
		return err
	}
	if err := w.writeRows(g.Tab, max(g.StartCol, 1), max(g.StartRow, 1), values); err != nil {
		return fmt.Errorf("failed to update range %s: %w", rng, err)
	}
	return w.save()
}

func (w *Workbook) AppendValues(_ context.Context, rng string, values [][]any) (int64, error) {
	tab := TabFromRange(rng)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureTab(tab); err != nil {
		return 0, err
	}
	rows, err := w.file.GetRows(tab)
	if err != nil {
		return 0, fmt.Errorf("failed to read tab %s: %w", tab, err)
	}
	if err := w.writeRows(tab, 1, len(rows)+1, values); err != nil {
		return 0, fmt.Errorf("failed to append to %s: %w", tab, err)
	}
	if err := w.save(); err != nil {
		return 0, err
	}

	var cells int64
	for _, row := range values {
		cells += int64(len(row))
	}
	return cells, nil
}

func (w *Workbook) TabID(_ context.Context, tab string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx, err := w.file.GetSheetIndex(tab)
	if err != nil {
		return 0, fmt.Errorf("failed to look up tab %s: %w", tab, err)
	}
	if idx < 0 {
		return 0, fmt.Errorf("%w: %s", ErrTabNotFound, tab)
	}
	return int64(idx), nil
}

func (w *Workbook) CreateTab(_ context.Context, tab string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureTab(tab); err != nil {
		return 0, err
	}
	if err := w.save(); err != nil {
		return 0, err
	}
	idx, err := w.file.GetSheetIndex(tab)
	if err != nil {
		return 0, err
	}
	return int64(idx), nil
}

// DeleteRows removes the row ranges in the order given.
func (w *Workbook) DeleteRows(_ context.Context, tabID int64, ranges []RowRange) error {
	if len(ranges) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	tab := w.file.GetSheetName(int(tabID))
	if tab == "" {
		return fmt.Errorf("%w: id %d", ErrTabNotFound, tabID)
	}
	for _, r := range ranges {
		for i := r.Start; i < r.End; i++ {
			// Each removal shifts the rest of the range up by one.
			if err := w.file.RemoveRow(tab, int(r.Start)+1); err != nil {
				return fmt.Errorf("failed to delete row %d: %w", r.Start+1, err)
			}
		}
	}
	return w.save()
}

func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// ensureTab creates tab if needed. The placeholder sheet of a new workbook is
// renamed instead of kept.
func (w *Workbook) ensureTab(tab string) error {
	idx, err := w.file.GetSheetIndex(tab)
	if err != nil {
		return fmt.Errorf("failed to look up tab %s: %w", tab, err)
	}
	if idx >= 0 {
		return nil
	}
	if w.fresh && tab != defaultSheetName {
		w.fresh = false
		if err := w.file.SetSheetName(defaultSheetName, tab); err != nil {
			return fmt.Errorf("failed to create tab %s: %w", tab, err)
		}
		return nil
	}
	if _, err := w.file.NewSheet(tab); err != nil {
		return fmt.Errorf("failed to create tab %s: %w", tab, err)
	}
	return nil
}

func (w *Workbook) writeRows(tab string, col, row int, values [][]any) error {
	for i := range values {
		cell, err := excelize.CoordinatesToCellName(col, row+i)
		if err != nil {
			return err
		}
		if err := w.file.SetSheetRow(tab, cell, &values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workbook) save() error {
	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", w.path, err)
	}
	w.fresh = false
	return nil
}

// sliceGrid cuts rows down to g and drops trailing empty cells and rows,
// matching what the Sheets API returns.
func sliceGrid(rows [][]string, g GridRange) [][]string {
	startRow := max(g.StartRow, 1)
	endRow := len(rows)
	if g.EndRow > 0 && g.EndRow < endRow {
		endRow = g.EndRow
	}
	startCol := max(g.StartCol, 1)

	var out [][]string
	for r := startRow; r <= endRow; r++ {
		src := rows[r-1]
		endCol := len(src)
		if g.EndCol > 0 && g.EndCol < endCol {
			endCol = g.EndCol
		}
		var cells []string
		if startCol <= endCol {
			cells = append(cells, src[startCol-1:endCol]...)
		}
		for len(cells) > 0 && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		out = append(out, cells)
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}
