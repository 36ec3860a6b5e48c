// Package memdocs is an in-process document provider. It follows the Google
// Docs content model: offset 0 is a section break, paragraphs end in "\n",
// the final newline cannot be deleted, offsets count UTF-16 code units and a
// batch is applied atomically.
package memdocs

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"letters/api/internal/docsync"
	"letters/api/internal/util"
)

// LocalSubject identifies sessions that were not bound to an account.
const LocalSubject = "local-user"

type document struct {
	id        string
	owner     string
	title     string
	body      []uint16
	revision  int
	createdAt time.Time
	seq       int
}

// Provider implements docsync.Provider in memory. Documents are scoped to
// the session subject.
type Provider struct {
	mu   sync.Mutex
	docs map[string]*document
	seq  int
	now  func() time.Time
}

func New() *Provider {
	return &Provider{docs: map[string]*document{}, now: time.Now}
}

var _ docsync.Provider = (*Provider)(nil)

func authorize(sess docsync.Session) error {
	if strings.TrimSpace(sess.AccessToken) == "" {
		return fmt.Errorf("%w: missing access token", docsync.ErrAuth)
	}
	return nil
}

func (p *Provider) lookup(sess docsync.Session, id string) (*document, error) {
	doc, ok := p.docs[id]
	if !ok || doc.owner != sess.Subject {
		return nil, fmt.Errorf("%w: %s", docsync.ErrNotFound, id)
	}
	return doc, nil
}

func (p *Provider) CreateDocument(ctx context.Context, sess docsync.Session, req docsync.CreateRequest) (string, error) {
	if err := authorize(sess); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Title) == "" {
		return "", fmt.Errorf("%w: title is required", docsync.ErrValidation)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	doc := &document{
		id:        util.NewID("doc"),
		owner:     sess.Subject,
		title:     req.Title,
		body:      []uint16{'\n'},
		revision:  1,
		createdAt: p.now(),
		seq:       p.seq,
	}
	p.docs[doc.id] = doc
	return doc.id, nil
}

func (p *Provider) FetchDocument(ctx context.Context, sess docsync.Session, id string) (docsync.Document, error) {
	if err := authorize(sess); err != nil {
		return docsync.Document{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, err := p.lookup(sess, id)
	if err != nil {
		return docsync.Document{}, err
	}
	return docsync.Document{
		ID:         doc.id,
		Title:      doc.title,
		RevisionID: revisionID(doc.revision),
		Blocks:     paragraphs(doc.body),
	}, nil
}

// paragraphs splits the body after every newline. The first paragraph starts
// at offset 1, right after the section break.
func paragraphs(body []uint16) []docsync.Block {
	blocks := make([]docsync.Block, 0, 4)
	start := 0
	for i, unit := range body {
		if unit != '\n' {
			continue
		}
		text := string(utf16.Decode(body[start : i+1]))
		blocks = append(blocks, docsync.Block{
			StartIndex: int64(start + 1),
			EndIndex:   int64(i + 2),
			Runs:       []docsync.Run{{Text: text}},
		})
		start = i + 1
	}
	return blocks
}

func (p *Provider) ApplyEdits(ctx context.Context, sess docsync.Session, id string, batch docsync.Batch) error {
	if err := authorize(sess); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, err := p.lookup(sess, id)
	if err != nil {
		return err
	}
	if batch.RequiredRevisionID != "" && batch.RequiredRevisionID != revisionID(doc.revision) {
		return fmt.Errorf("%w: revision %s is stale", docsync.ErrConflict, batch.RequiredRevisionID)
	}
	body := append([]uint16(nil), doc.body...)
	for i, edit := range batch.Edits {
		body, err = apply(body, edit)
		if err != nil {
			return fmt.Errorf("edit %d: %w", i, err)
		}
	}
	doc.body = body
	doc.revision++
	return nil
}

func apply(body []uint16, edit docsync.Edit) ([]uint16, error) {
	// Document offset n addresses body[n-1].
	limit := int64(len(body))
	switch edit.Kind {
	case docsync.EditDelete:
		if edit.Start < 1 || edit.End <= edit.Start {
			return nil, fmt.Errorf("%w: delete range [%d, %d) is empty or before the body", docsync.ErrValidation, edit.Start, edit.End)
		}
		if edit.End > limit {
			return nil, fmt.Errorf("%w: delete range [%d, %d) includes the final newline", docsync.ErrValidation, edit.Start, edit.End)
		}
		out := append([]uint16(nil), body[:edit.Start-1]...)
		return append(out, body[edit.End-1:]...), nil
	case docsync.EditInsert:
		if edit.Text == "" {
			return nil, fmt.Errorf("%w: insert text must not be empty", docsync.ErrValidation)
		}
		if edit.Index < 1 || edit.Index > limit {
			return nil, fmt.Errorf("%w: insert index %d out of bounds", docsync.ErrValidation, edit.Index)
		}
		text := utf16.Encode([]rune(edit.Text))
		out := make([]uint16, 0, len(body)+len(text))
		out = append(out, body[:edit.Index-1]...)
		out = append(out, text...)
		return append(out, body[edit.Index-1:]...), nil
	default:
		return nil, fmt.Errorf("%w: unknown edit kind %q", docsync.ErrValidation, edit.Kind)
	}
}

func (p *Provider) ListDocuments(ctx context.Context, sess docsync.Session) ([]docsync.File, error) {
	if err := authorize(sess); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	owned := make([]*document, 0, len(p.docs))
	for _, doc := range p.docs {
		if doc.owner == sess.Subject {
			owned = append(owned, doc)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].seq > owned[j].seq })
	files := make([]docsync.File, 0, len(owned))
	for _, doc := range owned {
		files = append(files, docsync.File{
			ID:        doc.id,
			Name:      doc.title,
			Link:      docsync.DocumentURL(doc.id),
			CreatedAt: doc.createdAt,
		})
	}
	return files, nil
}

func (p *Provider) ExportDocument(ctx context.Context, sess docsync.Session, id, mimeType string) (docsync.Exported, error) {
	if err := authorize(sess); err != nil {
		return docsync.Exported{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, err := p.lookup(sess, id)
	if err != nil {
		return docsync.Exported{}, err
	}
	text := string(utf16.Decode(doc.body))
	switch mimeType {
	case "text/plain":
		return docsync.Exported{Data: []byte(text), MimeType: mimeType}, nil
	case "text/html":
		var b strings.Builder
		b.WriteString("<html><body>")
		for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
			b.WriteString("<p>" + html.EscapeString(line) + "</p>")
		}
		b.WriteString("</body></html>")
		return docsync.Exported{Data: []byte(b.String()), MimeType: mimeType}, nil
	default:
		return docsync.Exported{}, fmt.Errorf("%w: export to %s is not available in memory mode", docsync.ErrValidation, mimeType)
	}
}

// Identify reports the session subject. Memory sessions carry no profile.
func (p *Provider) Identify(ctx context.Context, sess docsync.Session) (docsync.Identity, error) {
	if err := authorize(sess); err != nil {
		return docsync.Identity{}, err
	}
	subject := sess.Subject
	if subject == "" {
		subject = LocalSubject
	}
	return docsync.Identity{Subject: subject, Email: subject + "@localhost", Name: "Local User"}, nil
}

func revisionID(n int) string {
	return fmt.Sprintf("rev-%d", n)
}
