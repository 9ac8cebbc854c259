package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Injected column names.
const (
	FieldSourceFile    = "source_file"
	FieldProcessedDate = "processed_date"
	FieldDriveFileID   = "drive_file_id"

	// ProcessedDateLayout formats FieldProcessedDate.
	ProcessedDateLayout = "2006-01-02 15:04:05"
)

// ErrNoLineItems is returned when a payload carries none of the known item
// list keys. It is a warning, not an extraction failure.
var ErrNoLineItems = errors.New("no line items in extraction payload")

// ItemKeys are the top-level keys that may hold the line item list, in
// priority order.
var ItemKeys = []string{"items", "product_items"}

// PromotedField is a document-level value copied onto every line item.
type PromotedField struct {
	Column  string
	Aliases []string
}

// PromotedFields are looked up on the payload in order; the first alias
// present with a non-empty value wins.
var PromotedFields = []PromotedField{
	{Column: "po_number", Aliases: []string{"po_number", "purchase_order_number", "PO No"}},
	{Column: "vendor_invoice_number", Aliases: []string{"vendor_invoice_number", "invoice_number", "inv_no", "Invoice No"}},
	{Column: "supplier", Aliases: []string{"Supplier Name", "supplier", "vendor"}},
	{Column: "shipping_address", Aliases: []string{"delivery_address", "shipping_address", "receiver_address"}},
	{Column: "grn_date", Aliases: []string{"grn_date", "delivered_on"}},
	{Column: "grn_number", Aliases: []string{"grn_number"}},
}

// DocumentRef identifies the source document of extracted rows.
type DocumentRef struct {
	ID   string
	Name string
}

// Normalize flattens payload into one Row per line item. Item fields come
// first in key order, then promoted fields, then the injected source_file,
// processed_date and drive_file_id. Empty and null values are dropped and
// nested values are rendered as JSON text.
func Normalize(payload map[string]any, doc DocumentRef, now time.Time) ([]*Row, error) {
	rawItems, key, ok := lineItems(payload)
	if !ok {
		return nil, ErrNoLineItems
	}
	items, isList := rawItems.([]any)
	if !isList {
		return nil, fmt.Errorf("%w: %q is %T, not a list", ErrNoLineItems, key, rawItems)
	}

	promoted := make([]promotedValue, 0, len(PromotedFields))
	for _, f := range PromotedFields {
		if v, found := firstValue(payload, f.Aliases); found {
			promoted = append(promoted, promotedValue{f.Column, v})
		}
	}
	processed := now.Format(ProcessedDateLayout)

	rows := make([]*Row, 0, len(items))
	for _, raw := range items {
		item, isObject := raw.(map[string]any)
		if !isObject {
			continue
		}
		row := NewRow()
		for _, k := range sortedKeys(item) {
			setCell(row, k, item[k])
		}
		for _, p := range promoted {
			setCell(row, p.column, p.value)
		}
		setCell(row, FieldSourceFile, doc.Name)
		setCell(row, FieldProcessedDate, processed)
		setCell(row, FieldDriveFileID, doc.ID)
		rows = append(rows, row)
	}
	return rows, nil
}

type promotedValue struct {
	column string
	value  any
}

func lineItems(payload map[string]any) (any, string, bool) {
	for _, key := range ItemKeys {
		if v, ok := payload[key]; ok {
			return v, key, true
		}
	}
	return nil, "", false
}

func firstValue(payload map[string]any, aliases []string) (any, bool) {
	for _, alias := range aliases {
		if v, ok := payload[alias]; ok && !isEmpty(v) {
			return v, true
		}
	}
	return nil, false
}

func setCell(row *Row, key string, value any) {
	if isEmpty(value) {
		return
	}
	switch value.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(value)
		if err != nil {
			return
		}
		row.Set(key, string(b))
	default:
		row.Set(key, value)
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
