// Package sheetsync writes extracted rows into a spreadsheet tab keyed by
// their source document.
//
// A write reads the header row, grows it with any new columns, deletes the
// rows previously written for the same document and appends the new ones.
// Headers are only ever appended, never reordered or removed, so rows
// written by earlier runs stay aligned with their columns.
package sheetsync
