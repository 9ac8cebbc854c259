// Package gmail provides a read-only client for the Gmail API.
//
// The client searches messages with Gmail's query language, reads the
// headers the workflows log (From, Subject, Date) and downloads attachments.
// Attachments are discovered by walking the full MIME tree of a message,
// so nested multipart bodies are handled.
//
// Example usage:
//
//	client, err := gmail.NewClient(ctx, "default", option.WithHTTPClient(httpClient))
//	if err != nil {
//	    return err
//	}
//
//	refs, err := client.Search(ctx, `has:attachment "invoice"`, 50)
//	for _, ref := range refs {
//	    atts, err := client.ListAttachments(ctx, ref.ID)
//	    ...
//	}
package gmail
