package memdocs

import (
	"context"
	"errors"
	"testing"
	"time"

	"letters/api/internal/docsync"
)

var owner = docsync.Session{ID: "sess-1", Subject: "user-1", AccessToken: "token-1"}

func newDoc(t *testing.T, p *Provider, sess docsync.Session, title string) string {
	t.Helper()
	id, err := p.CreateDocument(context.Background(), sess, docsync.CreateRequest{Title: title})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	return id
}

func TestNewDocumentHasOneEmptyParagraph(t *testing.T) {
	p := New()
	id := newDoc(t, p, owner, "Hi")

	doc, err := p.FetchDocument(context.Background(), owner, id)
	if err != nil {
		t.Fatalf("FetchDocument() error = %v", err)
	}
	if doc.Title != "Hi" || len(doc.Blocks) != 1 {
		t.Fatalf("doc = %+v, want one block titled Hi", doc)
	}
	if b := doc.Blocks[0]; b.StartIndex != 1 || b.EndIndex != 2 || b.Runs[0].Text != "\n" {
		t.Fatalf("block = %+v, want [1,2) newline", b)
	}
}

func TestRoundTripPlainText(t *testing.T) {
	ctx := context.Background()
	p := New()
	s := docsync.New(docsync.GoogleDocsPolicy)
	id := newDoc(t, p, owner, "Round trip")

	inputs := []string{
		"Hello",
		"",
		"Dear Sam,\n\nThanks for the letter.\nBest,\nAvery",
		"trailing newline\n",
		"\n\n",
		"unicode: héllo 👋 世界",
		"",
		"short",
	}
	for _, want := range inputs {
		doc, err := p.FetchDocument(ctx, owner, id)
		if err != nil {
			t.Fatalf("FetchDocument() error = %v", err)
		}
		edits, err := s.ReplaceOperation(doc, want, docsync.FormatText)
		if err != nil {
			t.Fatalf("ReplaceOperation() error = %v", err)
		}
		if len(edits) > 0 {
			batch := docsync.Batch{Edits: edits, RequiredRevisionID: doc.RevisionID}
			if err := p.ApplyEdits(ctx, owner, id, batch); err != nil {
				t.Fatalf("ApplyEdits(%q) error = %v", want, err)
			}
		}
		after, err := p.FetchDocument(ctx, owner, id)
		if err != nil {
			t.Fatalf("FetchDocument() error = %v", err)
		}
		if got := s.ToLocal(after); got != want {
			t.Fatalf("round trip = %q, want %q", got, want)
		}
	}
}

func TestApplyEditsRejectsInvalidEdits(t *testing.T) {
	ctx := context.Background()
	p := New()
	id := newDoc(t, p, owner, "Edits")
	if err := p.ApplyEdits(ctx, owner, id, docsync.Batch{Edits: []docsync.Edit{
		{Kind: docsync.EditInsert, Index: 1, Text: "abc"},
	}}); err != nil {
		t.Fatalf("ApplyEdits() error = %v", err)
	}

	tests := []struct {
		name string
		edit docsync.Edit
	}{
		{name: "empty delete", edit: docsync.Edit{Kind: docsync.EditDelete, Start: 1, End: 1}},
		{name: "delete section break", edit: docsync.Edit{Kind: docsync.EditDelete, Start: 0, End: 2}},
		{name: "delete final newline", edit: docsync.Edit{Kind: docsync.EditDelete, Start: 1, End: 5}},
		{name: "empty insert", edit: docsync.Edit{Kind: docsync.EditInsert, Index: 1}},
		{name: "insert past end", edit: docsync.Edit{Kind: docsync.EditInsert, Index: 9, Text: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.ApplyEdits(ctx, owner, id, docsync.Batch{Edits: []docsync.Edit{tt.edit}})
			if !errors.Is(err, docsync.ErrValidation) {
				t.Fatalf("ApplyEdits() error = %v, want ErrValidation", err)
			}
		})
	}

	doc, err := p.FetchDocument(ctx, owner, id)
	if err != nil {
		t.Fatalf("FetchDocument() error = %v", err)
	}
	if got := docsync.New(docsync.GoogleDocsPolicy).ToLocal(doc); got != "abc" {
		t.Fatalf("content after rejected edits = %q, want abc", got)
	}
}

func TestApplyEditsIsAtomic(t *testing.T) {
	ctx := context.Background()
	p := New()
	id := newDoc(t, p, owner, "Atomic")
	err := p.ApplyEdits(ctx, owner, id, docsync.Batch{Edits: []docsync.Edit{
		{Kind: docsync.EditInsert, Index: 1, Text: "kept?"},
		{Kind: docsync.EditInsert, Index: 1},
	}})
	if !errors.Is(err, docsync.ErrValidation) {
		t.Fatalf("ApplyEdits() error = %v, want ErrValidation", err)
	}
	doc, _ := p.FetchDocument(ctx, owner, id)
	if doc.RevisionID != "rev-1" || len(doc.Blocks) != 1 || doc.Blocks[0].Runs[0].Text != "\n" {
		t.Fatalf("doc changed by a rejected batch: %+v", doc)
	}
}

func TestApplyEditsDetectsStaleRevision(t *testing.T) {
	ctx := context.Background()
	p := New()
	id := newDoc(t, p, owner, "Conflict")
	stale, _ := p.FetchDocument(ctx, owner, id)

	insert := docsync.Edit{Kind: docsync.EditInsert, Index: 1, Text: "first"}
	if err := p.ApplyEdits(ctx, owner, id, docsync.Batch{Edits: []docsync.Edit{insert}, RequiredRevisionID: stale.RevisionID}); err != nil {
		t.Fatalf("ApplyEdits() error = %v", err)
	}
	err := p.ApplyEdits(ctx, owner, id, docsync.Batch{Edits: []docsync.Edit{insert}, RequiredRevisionID: stale.RevisionID})
	if !errors.Is(err, docsync.ErrConflict) {
		t.Fatalf("ApplyEdits(stale) error = %v, want ErrConflict", err)
	}
}

func TestDocumentsAreScopedToSubject(t *testing.T) {
	ctx := context.Background()
	p := New()
	id := newDoc(t, p, owner, "Mine")
	other := docsync.Session{ID: "sess-2", Subject: "user-2", AccessToken: "token-2"}

	if _, err := p.FetchDocument(ctx, other, id); !errors.Is(err, docsync.ErrNotFound) {
		t.Fatalf("FetchDocument(other) error = %v, want ErrNotFound", err)
	}
	files, err := p.ListDocuments(ctx, other)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("ListDocuments(other) = %+v, want none", files)
	}
	if _, err := p.FetchDocument(ctx, docsync.Session{Subject: "user-1"}, id); !errors.Is(err, docsync.ErrAuth) {
		t.Fatalf("FetchDocument(no token) error = %v, want ErrAuth", err)
	}
}

func TestListDocumentsNewestFirst(t *testing.T) {
	p := New()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	p.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	}
	first := newDoc(t, p, owner, "First")
	second := newDoc(t, p, owner, "Second")

	files, err := p.ListDocuments(context.Background(), owner)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(files) != 2 || files[0].ID != second || files[1].ID != first {
		t.Fatalf("ListDocuments() = %+v, want second then first", files)
	}
	if files[0].Link != docsync.DocumentURL(second) || !files[0].CreatedAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("ListDocuments()[0] = %+v", files[0])
	}
}

func TestExportDocument(t *testing.T) {
	ctx := context.Background()
	p := New()
	id := newDoc(t, p, owner, "Export")
	_ = p.ApplyEdits(ctx, owner, id, docsync.Batch{Edits: []docsync.Edit{{Kind: docsync.EditInsert, Index: 1, Text: "a<b"}}})

	out, err := p.ExportDocument(ctx, owner, id, "text/html")
	if err != nil {
		t.Fatalf("ExportDocument() error = %v", err)
	}
	if string(out.Data) != "<html><body><p>a&lt;b</p></body></html>" {
		t.Fatalf("ExportDocument(html) = %q", out.Data)
	}
	if _, err := p.ExportDocument(ctx, owner, id, "application/pdf"); !errors.Is(err, docsync.ErrValidation) {
		t.Fatalf("ExportDocument(pdf) error = %v, want ErrValidation", err)
	}
}
