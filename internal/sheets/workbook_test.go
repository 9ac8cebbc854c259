package sheets

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkbook_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.xlsx")

	wb, err := OpenWorkbook(path)
	require.NoError(t, err)

	_, err = wb.GetValues(ctx, "Ledger")
	assert.ErrorIs(t, err, ErrTabNotFound)

	require.NoError(t, wb.UpdateValues(ctx, HeaderRange("Ledger", 2), [][]any{{"sku", "drive_file_id"}}))
	cells, err := wb.AppendValues(ctx, "Ledger", [][]any{{"A-1", "f1"}, {"A-2", "f2"}})
	require.NoError(t, err)
	assert.Equal(t, int64(4), cells)
	require.NoError(t, wb.Close())

	reopened, err := OpenWorkbook(path)
	require.NoError(t, err)
	defer reopened.Close()

	rows, err := reopened.GetValues(ctx, "Ledger")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"sku", "drive_file_id"}, {"A-1", "f1"}, {"A-2", "f2"}}, rows)

	header, err := reopened.GetValues(ctx, "Ledger!A1:B1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"sku", "drive_file_id"}}, header)

	ids, err := reopened.GetValues(ctx, "Ledger!B2:B")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"f1"}, {"f2"}}, ids)
}

func TestWorkbook_DeleteRowsBottomUp(t *testing.T) {
	ctx := context.Background()
	wb, err := OpenWorkbook(filepath.Join(t.TempDir(), "ledger.xlsx"))
	require.NoError(t, err)
	defer wb.Close()

	tabID, err := wb.CreateTab(ctx, "Ledger")
	require.NoError(t, err)

	_, err = wb.AppendValues(ctx, "Ledger", [][]any{
		{"id"}, {"r2"}, {"r3"}, {"r4"}, {"r5"}, {"r6"}, {"r7"}, {"r8"},
	})
	require.NoError(t, err)

	// Rows 7, 5 and 2 (1-based), highest first.
	require.NoError(t, wb.DeleteRows(ctx, tabID, []RowRange{{6, 7}, {4, 5}, {1, 2}}))

	rows, err := wb.GetValues(ctx, "Ledger")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id"}, {"r3"}, {"r4"}, {"r6"}, {"r8"}}, rows)
}

func TestWorkbook_TabID(t *testing.T) {
	ctx := context.Background()
	wb, err := OpenWorkbook(filepath.Join(t.TempDir(), "ledger.xlsx"))
	require.NoError(t, err)
	defer wb.Close()

	_, err = wb.TabID(ctx, "Missing")
	assert.ErrorIs(t, err, ErrTabNotFound)

	id, err := wb.CreateTab(ctx, "Ledger")
	require.NoError(t, err)
	got, err := wb.TabID(ctx, "Ledger")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	assert.ErrorIs(t, wb.DeleteRows(ctx, 42, []RowRange{{1, 2}}), ErrTabNotFound)
}

func TestSliceGrid(t *testing.T) {
	rows := [][]string{
		{"a", "b", "c"},
		{},
		{"d", "", ""},
		{},
	}
	assert.Equal(t, [][]string{{"a", "b", "c"}, nil, {"d"}}, sliceGrid(rows, GridRange{Tab: "x"}))
	assert.Equal(t, [][]string{{"b"}}, sliceGrid(rows, GridRange{Tab: "x", StartCol: 2, EndCol: 2}))
	assert.Equal(t, [][]string{{"d"}}, sliceGrid(rows, GridRange{Tab: "x", StartRow: 3, EndRow: 3}))
}
