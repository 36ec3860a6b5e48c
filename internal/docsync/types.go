// Package docsync reconciles the editor's markup with a remote document made
// of blocks of text runs. It computes the edits that overwrite remote content
// and renders remote content back into editor text. It never talks to a
// provider directly; callers pass the computed edits to a DocumentGateway.
package docsync

import "time"

// Run is a span of text with uniform formatting.
type Run struct {
	Text string
}

// Block is a structural unit of a remote document, usually a paragraph.
// StartIndex and EndIndex are provider offsets; EndIndex is exclusive.
type Block struct {
	StartIndex int64
	EndIndex   int64
	Runs       []Run
}

// Document is a freshly fetched remote document. It is never cached.
type Document struct {
	ID         string
	Title      string
	RevisionID string
	Blocks     []Block
}

type EditKind string

const (
	EditDelete EditKind = "delete"
	EditInsert EditKind = "insert"
)

// Edit is one instruction of a batch. Deletes use [Start, End); inserts use
// Index and Text.
type Edit struct {
	Kind  EditKind
	Start int64
	End   int64
	Index int64
	Text  string
}

// Batch is applied atomically by the provider. RequiredRevisionID, when set,
// makes the provider reject the batch if the document changed since fetch.
type Batch struct {
	Edits              []Edit
	RequiredRevisionID string
}

type CreateRequest struct {
	Title string
}

// File is one entry of a document listing.
type File struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Link      string    `json:"webViewLink"`
	CreatedAt time.Time `json:"createdTime"`
}

// Session is the provider credential pair of one signed-in identity. It is
// passed explicitly into every gateway call and never validated locally.
type Session struct {
	ID           string
	Subject      string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}
