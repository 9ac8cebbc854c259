// Package drive provides a client for the Google Drive API.
//
// It covers what the sync workflows need from Drive:
//   - Listing files with Drive's query language, across all result pages
//   - Finding and creating folders by name under a parent
//   - Checking whether a file name already exists in a folder
//   - Uploading file content (resumable, in chunks)
//   - Downloading file content
//
// Each client instance is bound to a specific account.
//
// Example usage:
//
//	client, err := drive.NewClient(ctx, "default", option.WithHTTPClient(httpClient))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	files, err := client.ListAll(ctx, "mimeType='application/pdf'", "createdTime desc")
package drive
