// Package extract turns PDF bytes into flat ledger rows.
//
// An Adapter writes the document to a scoped temporary file, calls the
// extraction Service with bounded retry, optionally validates the payload
// against a JSON Schema, and Normalize flattens the payload's line items
// into Rows enriched with document-level fields.
package extract
