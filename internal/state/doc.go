// Package state persists the identifiers of work items whose side effects
// have completed, so repeated or interrupted runs skip them.
//
// The Store keeps two grow-only sets (email message ids and document ids) and
// writes the full snapshot to its Backend after every mutation. Backends are
// selected by DSN:
//
//	processed_state.json          JSON file (default)
//	file:///var/lib/x/state.json  JSON file
//	memory://                     in-memory, for tests and dry runs
//	sqlite:///var/lib/x/state.db  embedded SQLite
//	postgres://user@host/db       PostgreSQL
//
// The JSON file format is {"emails": [...], "pdfs": [...]}.
package state
