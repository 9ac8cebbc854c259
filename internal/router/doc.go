// Package router decides where attachments land in Drive and delivers them.
//
// A PathStrategy maps an attachment to folder names below the base folder.
// Router resolves those names to folder ids, creating missing folders and
// remembering every (parent, name) pair it has resolved during the run.
// Writer uploads a file unless one with the same sanitized name is already
// in the target folder.
package router
