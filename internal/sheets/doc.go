// Package sheets reads and writes tabular ledgers.
//
// Client talks to the Google Sheets v4 API for one spreadsheet. Workbook
// offers the same operations on a local .xlsx file, which is useful for
// offline runs and exports. Both address cells with A1 notation
// ("Ledger!A1:F1", "'GRN 2024'!A:A", or a bare tab name for the whole tab).
package sheets
