package docsync

import "context"

// DocumentGateway creates, reads and edits remote documents.
type DocumentGateway interface {
	FetchDocument(ctx context.Context, sess Session, id string) (Document, error)
	CreateDocument(ctx context.Context, sess Session, req CreateRequest) (string, error)
	ApplyEdits(ctx context.Context, sess Session, id string, batch Batch) error
}

// FileListingGateway lists the documents owned by the session identity.
type FileListingGateway interface {
	ListDocuments(ctx context.Context, sess Session) ([]File, error)
}

// Identity is the provider account behind a session.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

type IdentityGateway interface {
	Identify(ctx context.Context, sess Session) (Identity, error)
}

// Exported is a rendered copy of a document in a download format.
type Exported struct {
	Data     []byte
	MimeType string
}

type ExportGateway interface {
	ExportDocument(ctx context.Context, sess Session, id, mimeType string) (Exported, error)
}

// Provider bundles every capability the API needs from one backend.
type Provider interface {
	DocumentGateway
	FileListingGateway
	IdentityGateway
	ExportGateway
}

// DocumentURL is the browser link returned when a letter is created.
func DocumentURL(id string) string {
	return "https://docs.google.com/document/d/" + id + "/edit"
}

