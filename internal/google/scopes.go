package google

import (
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"
	sheets "google.golang.org/api/sheets/v4"
)

// DefaultScopes are the OAuth scopes both workflows need:
//   - Gmail: read messages and attachments
//   - Drive: list, download, create folders, upload
//   - Sheets: read and write the ledger spreadsheet
var DefaultScopes = []string{
	gmail.GmailReadonlyScope,
	drive.DriveScope,
	sheets.SpreadsheetsScope,
}
