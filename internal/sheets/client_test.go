package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), "sheet-1",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestDeleteRequests(t *testing.T) {
	reqs := DeleteRequests(0, []RowRange{{6, 7}, {4, 5}, {1, 2}})
	require.Len(t, reqs, 3)

	for i, want := range []int64{6, 4, 1} {
		r := reqs[i].DeleteDimension.Range
		assert.Equal(t, "ROWS", r.Dimension)
		assert.Equal(t, want, r.StartIndex)
		assert.Equal(t, want+1, r.EndIndex)
	}

	// sheetId 0 must survive JSON encoding.
	raw, err := json.Marshal(reqs[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sheetId":0`)
}

func TestNewClient_RequiresSpreadsheet(t *testing.T) {
	_, err := NewClient(context.Background(), "")
	assert.Error(t, err)
}

func TestClient_GetValues(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.Contains(r.URL.Path, "/spreadsheets/sheet-1/values/"), r.URL.Path)
		writeJSON(w, map[string]any{
			"range":  "Ledger!A1:C2",
			"values": [][]any{{"sku", "qty"}, {"A-1", 3}},
		})
	})

	rows, err := c.GetValues(context.Background(), "Ledger")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"sku", "qty"}, {"A-1", "3"}}, rows)
}

func TestClient_AppendValues(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":append"), r.URL.Path)
		assert.Equal(t, "USER_ENTERED", r.URL.Query().Get("valueInputOption"))
		assert.Equal(t, "INSERT_ROWS", r.URL.Query().Get("insertDataOption"))
		writeJSON(w, map[string]any{"updates": map[string]any{"updatedCells": 4, "updatedRows": 2}})
	})

	cells, err := c.AppendValues(context.Background(), "Ledger", [][]any{{"a", "b"}, {"c", "d"}})
	require.NoError(t, err)
	assert.Equal(t, int64(4), cells)
}

func TestClient_TabID(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, map[string]any{
			"sheets": []map[string]any{
				{"properties": map[string]any{"sheetId": 0, "title": "Sheet1"}},
				{"properties": map[string]any{"sheetId": 912, "title": "Ledger"}},
			},
		})
	})

	id, err := c.TabID(context.Background(), "Ledger")
	require.NoError(t, err)
	assert.Equal(t, int64(912), id)

	id, err = c.TabID(context.Background(), "Sheet1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
	assert.Equal(t, 1, calls)

	_, err = c.TabID(context.Background(), "Missing")
	assert.ErrorIs(t, err, ErrTabNotFound)
}
