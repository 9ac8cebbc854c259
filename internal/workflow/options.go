package workflow

import (
	"github.com/teemow/inboxledger/internal/config"
	"github.com/teemow/inboxledger/internal/router"
	"github.com/teemow/inboxledger/internal/selector"
)

// AttachmentOptionsFrom builds the attachment batch options from cfg.
func AttachmentOptionsFrom(cfg *config.Config) (AttachmentOptions, error) {
	g := cfg.Gmail
	layout, err := router.NewPathStrategy(g.FolderLayout, g.SearchTerm)
	if err != nil {
		return AttachmentOptions{}, err
	}
	skip, err := cfg.SkipSubjects()
	if err != nil {
		return AttachmentOptions{}, err
	}
	return AttachmentOptions{
		Criteria: selector.EmailCriteria{
			Sender:     g.Sender,
			SearchTerm: g.SearchTerm,
			DaysBack:   g.DaysBack,
			MaxResults: g.MaxResults,
		},
		RootFolderID: g.DriveFolderID,
		BaseFolder:   g.BaseFolder,
		Layout:       layout,
		Filter: router.Filter{
			Extensions: g.AllowedExtensions,
			MimeTypes:  g.AllowedMimeTypes,
			MaxBytes:   g.MaxAttachmentBytes,
		},
		SkipSubjects: skip,
	}, nil
}

// DocumentOptionsFrom builds the document batch options from cfg.
func DocumentOptionsFrom(cfg *config.Config) DocumentOptions {
	d := cfg.Documents
	return DocumentOptions{
		Criteria: selector.DocumentCriteria{
			FolderID: d.DriveFolderID,
			DaysBack: d.DaysBack,
			MaxFiles: d.MaxFiles,
		},
		Tab:          d.Tab(),
		SkipExisting: d.SkipExisting,
	}
}
