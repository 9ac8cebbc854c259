// Package google authenticates the batch against Google APIs.
//
// OAuth client settings come from a downloaded credentials.json. Tokens are
// kept per account as JSON files in the user cache directory and refreshed
// tokens are written back, so an authorization code only has to be exchanged
// once per account. Authenticate builds the Gmail, Drive and Sheets clients
// the workflows use.
package google
