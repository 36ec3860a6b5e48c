package docsync

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeGateway struct {
	calls      []string
	fetchFn    func(id string) (Document, error)
	createFn   func(req CreateRequest) (string, error)
	applyFn    func(id string, batch Batch) error
	lastBatch  Batch
	lastCreate CreateRequest
}

func (f *fakeGateway) FetchDocument(_ context.Context, _ Session, id string) (Document, error) {
	f.calls = append(f.calls, "fetch:"+id)
	if f.fetchFn != nil {
		return f.fetchFn(id)
	}
	return Document{ID: id}, nil
}

func (f *fakeGateway) CreateDocument(_ context.Context, _ Session, req CreateRequest) (string, error) {
	f.calls = append(f.calls, "create:"+req.Title)
	f.lastCreate = req
	if f.createFn != nil {
		return f.createFn(req)
	}
	return "doc-new", nil
}

func (f *fakeGateway) ApplyEdits(_ context.Context, _ Session, id string, batch Batch) error {
	f.calls = append(f.calls, "apply:"+id)
	f.lastBatch = batch
	if f.applyFn != nil {
		return f.applyFn(id, batch)
	}
	return nil
}

var testSession = Session{ID: "sess-1", AccessToken: "token"}

func TestSaveCreatesThenInserts(t *testing.T) {
	gw := &fakeGateway{}
	s := New(GoogleDocsPolicy)
	letter := NewLetter("Hi", "<p>Hello</p>")

	if err := s.Save(context.Background(), gw, testSession, letter, FormatAuto); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if diff := cmp.Diff([]string{"create:Hi", "apply:doc-new"}, gw.calls); diff != "" {
		t.Fatalf("gateway calls mismatch (-want +got):\n%s", diff)
	}
	want := Batch{Edits: []Edit{{Kind: EditInsert, Index: 1, Text: "Hello"}}}
	if diff := cmp.Diff(want, gw.lastBatch); diff != "" {
		t.Fatalf("batch mismatch (-want +got):\n%s", diff)
	}
	if letter.ID != "doc-new" || letter.State != StateCreated {
		t.Fatalf("letter = %+v, want created doc-new", letter)
	}
}

func TestSaveCreateWithoutContentSkipsInsert(t *testing.T) {
	gw := &fakeGateway{}
	letter := NewLetter("Hi", "")
	if err := New(GoogleDocsPolicy).Save(context.Background(), gw, testSession, letter, FormatAuto); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if diff := cmp.Diff([]string{"create:Hi"}, gw.calls); diff != "" {
		t.Fatalf("gateway calls mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveCreateRejectsMissingTitle(t *testing.T) {
	gw := &fakeGateway{}
	letter := NewLetter(" ", "<p>x</p>")
	err := New(GoogleDocsPolicy).Save(context.Background(), gw, testSession, letter, FormatAuto)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Save() error = %v, want ErrValidation", err)
	}
	if len(gw.calls) != 0 || letter.State != StateUnsaved {
		t.Fatalf("calls = %v state = %s, want no calls and unsaved", gw.calls, letter.State)
	}
}

func TestSaveCreateInsertFailureReportsPartialCreate(t *testing.T) {
	gw := &fakeGateway{applyFn: func(string, Batch) error { return ErrTransient }}
	letter := NewLetter("Hi", "body")

	err := New(GoogleDocsPolicy).Save(context.Background(), gw, testSession, letter, FormatText)
	var partial *PartialCreateError
	if !errors.As(err, &partial) || partial.DocumentID != "doc-new" {
		t.Fatalf("Save() error = %v, want PartialCreateError for doc-new", err)
	}
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("Save() error = %v, want ErrTransient in chain", err)
	}
	if letter.State != StateFailed || letter.ID != "" {
		t.Fatalf("letter = %+v, want failed without id", letter)
	}
}

func TestSaveExistingFetchesThenReplaces(t *testing.T) {
	gw := &fakeGateway{fetchFn: func(id string) (Document, error) {
		return Document{ID: id, RevisionID: "rev-7", Blocks: []Block{{StartIndex: 1, EndIndex: 42}}}, nil
	}}
	letter := ExistingLetter("doc-1", "fresh text")

	if err := New(GoogleDocsPolicy).Save(context.Background(), gw, testSession, letter, FormatText); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if diff := cmp.Diff([]string{"fetch:doc-1", "apply:doc-1"}, gw.calls); diff != "" {
		t.Fatalf("gateway calls mismatch (-want +got):\n%s", diff)
	}
	want := Batch{
		Edits: []Edit{
			{Kind: EditDelete, Start: 1, End: 41},
			{Kind: EditInsert, Index: 1, Text: "fresh text"},
		},
		RequiredRevisionID: "rev-7",
	}
	if diff := cmp.Diff(want, gw.lastBatch); diff != "" {
		t.Fatalf("batch mismatch (-want +got):\n%s", diff)
	}
	if letter.State != StateCreated {
		t.Fatalf("State = %s, want created", letter.State)
	}
}

func TestSaveExistingFetchFailure(t *testing.T) {
	gw := &fakeGateway{fetchFn: func(string) (Document, error) { return Document{}, ErrNotFound }}
	letter := ExistingLetter("doc-missing", "x")

	err := New(GoogleDocsPolicy).Save(context.Background(), gw, testSession, letter, FormatText)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Save() error = %v, want ErrNotFound", err)
	}
	if diff := cmp.Diff([]string{"fetch:doc-missing"}, gw.calls); diff != "" {
		t.Fatalf("gateway calls mismatch (-want +got):\n%s", diff)
	}
	if letter.State != StateFailed {
		t.Fatalf("State = %s, want failed", letter.State)
	}
}

func TestLoadRendersDocument(t *testing.T) {
	gw := &fakeGateway{fetchFn: func(id string) (Document, error) {
		return Document{ID: id, Title: "Hi", Blocks: []Block{{StartIndex: 1, EndIndex: 7, Runs: []Run{{Text: "Hello\n"}}}}}, nil
	}}
	doc, text, err := New(GoogleDocsPolicy).Load(context.Background(), gw, testSession, "doc-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Title != "Hi" || text != "Hello" {
		t.Fatalf("Load() = %q, %q", doc.Title, text)
	}
}
