package docsync

import (
	"context"
	"fmt"
)

// PartialCreateError reports a document that was created but whose initial
// content could not be written. Retrying the letter creates another document.
type PartialCreateError struct {
	DocumentID string
	Err        error
}

func (e *PartialCreateError) Error() string {
	return fmt.Sprintf("document %s created but content write failed: %v", e.DocumentID, e.Err)
}

func (e *PartialCreateError) Unwrap() error { return e.Err }

// Save writes letter to the provider: create then insert for a new letter,
// fetch then replace for an existing one. Calls are strictly sequential.
func (s *Synchronizer) Save(ctx context.Context, gw DocumentGateway, sess Session, letter *Letter, format Format) error {
	if letter.ID == "" {
		return s.create(ctx, gw, sess, letter, format)
	}
	return s.sync(ctx, gw, sess, letter, format)
}

func (s *Synchronizer) create(ctx context.Context, gw DocumentGateway, sess Session, letter *Letter, format Format) error {
	req, insert, err := s.CreateOperation(letter.Title, letter.Content, format)
	if err != nil {
		return err
	}
	if err := letter.BeginSave(); err != nil {
		return err
	}
	id, err := gw.CreateDocument(ctx, sess, req)
	if err != nil {
		_ = letter.Fail(err)
		return fmt.Errorf("create document: %w", err)
	}
	if insert != nil {
		if err := gw.ApplyEdits(ctx, sess, id, Batch{Edits: []Edit{*insert}}); err != nil {
			partial := &PartialCreateError{DocumentID: id, Err: err}
			_ = letter.Fail(partial)
			return partial
		}
	}
	return letter.Succeed(id)
}

func (s *Synchronizer) sync(ctx context.Context, gw DocumentGateway, sess Session, letter *Letter, format Format) error {
	if _, err := ToText(letter.Content, format); err != nil {
		return err
	}
	if err := letter.BeginSave(); err != nil {
		return err
	}
	doc, err := gw.FetchDocument(ctx, sess, letter.ID)
	if err != nil {
		_ = letter.Fail(err)
		return fmt.Errorf("fetch document: %w", err)
	}
	edits, err := s.ReplaceOperation(doc, letter.Content, format)
	if err != nil {
		_ = letter.Fail(err)
		return err
	}
	if len(edits) > 0 {
		batch := Batch{Edits: edits, RequiredRevisionID: doc.RevisionID}
		if err := gw.ApplyEdits(ctx, sess, letter.ID, batch); err != nil {
			_ = letter.Fail(err)
			return fmt.Errorf("apply edits: %w", err)
		}
	}
	return letter.Succeed(letter.ID)
}

// Load fetches a document and renders it for the editor.
func (s *Synchronizer) Load(ctx context.Context, gw DocumentGateway, sess Session, id string) (Document, string, error) {
	doc, err := gw.FetchDocument(ctx, sess, id)
	if err != nil {
		return Document{}, "", fmt.Errorf("fetch document: %w", err)
	}
	return doc, s.ToLocal(doc), nil
}
