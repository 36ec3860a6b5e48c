// Package gdocs adapts the Google Docs, Drive and userinfo APIs to the
// docsync gateway interfaces.
package gdocs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"letters/api/internal/docsync"
)

const (
	documentMimeType = "application/vnd.google-apps.document"
	listQuery        = "mimeType='" + documentMimeType + "' and trashed=false"
	listFields       = "nextPageToken, files(id, name, webViewLink, createdTime)"
	// Drive refuses exports above 10MB.
	maxExportBytes = 10 << 20
)

// Endpoints overrides the API base URLs. Empty values use Google's.
type Endpoints struct {
	Docs     string
	Drive    string
	Userinfo string
}

type Gateway struct {
	oauth     *oauth2.Config
	endpoints Endpoints
}

var _ docsync.Provider = (*Gateway)(nil)

func New(cfg *oauth2.Config, endpoints Endpoints) *Gateway {
	return &Gateway{oauth: cfg, endpoints: endpoints}
}

// client authenticates every request with the session's token pair. An
// expired access token is refreshed in memory for the duration of the call.
func (g *Gateway) client(ctx context.Context, sess docsync.Session) *http.Client {
	token := &oauth2.Token{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		Expiry:       sess.Expiry,
		TokenType:    "Bearer",
	}
	return oauth2.NewClient(ctx, g.oauth.TokenSource(ctx, token))
}

func (g *Gateway) options(ctx context.Context, sess docsync.Session, endpoint string) []option.ClientOption {
	opts := []option.ClientOption{option.WithHTTPClient(g.client(ctx, sess))}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

func (g *Gateway) docsService(ctx context.Context, sess docsync.Session) (*docs.Service, error) {
	srv, err := docs.NewService(ctx, g.options(ctx, sess, g.endpoints.Docs)...)
	if err != nil {
		return nil, fmt.Errorf("docs client: %w", err)
	}
	return srv, nil
}

func (g *Gateway) driveService(ctx context.Context, sess docsync.Session) (*drive.Service, error) {
	srv, err := drive.NewService(ctx, g.options(ctx, sess, g.endpoints.Drive)...)
	if err != nil {
		return nil, fmt.Errorf("drive client: %w", err)
	}
	return srv, nil
}

func (g *Gateway) FetchDocument(ctx context.Context, sess docsync.Session, id string) (docsync.Document, error) {
	srv, err := g.docsService(ctx, sess)
	if err != nil {
		return docsync.Document{}, err
	}
	doc, err := srv.Documents.Get(id).Context(ctx).Do()
	if err != nil {
		return docsync.Document{}, classify("get document", err)
	}
	return toDocument(doc), nil
}

func (g *Gateway) CreateDocument(ctx context.Context, sess docsync.Session, req docsync.CreateRequest) (string, error) {
	srv, err := g.docsService(ctx, sess)
	if err != nil {
		return "", err
	}
	doc, err := srv.Documents.Create(&docs.Document{Title: req.Title}).Context(ctx).Do()
	if err != nil {
		return "", classify("create document", err)
	}
	return doc.DocumentId, nil
}

func (g *Gateway) ApplyEdits(ctx context.Context, sess docsync.Session, id string, batch docsync.Batch) error {
	if len(batch.Edits) == 0 {
		return nil
	}
	req, err := toBatchRequest(batch)
	if err != nil {
		return err
	}
	srv, err := g.docsService(ctx, sess)
	if err != nil {
		return err
	}
	if _, err := srv.Documents.BatchUpdate(id, req).Context(ctx).Do(); err != nil {
		return classify("batch update", err)
	}
	return nil
}

func toBatchRequest(batch docsync.Batch) (*docs.BatchUpdateDocumentRequest, error) {
	req := &docs.BatchUpdateDocumentRequest{Requests: make([]*docs.Request, 0, len(batch.Edits))}
	for _, edit := range batch.Edits {
		switch edit.Kind {
		case docsync.EditDelete:
			req.Requests = append(req.Requests, &docs.Request{
				DeleteContentRange: &docs.DeleteContentRangeRequest{
					Range: &docs.Range{StartIndex: edit.Start, EndIndex: edit.End},
				},
			})
		case docsync.EditInsert:
			req.Requests = append(req.Requests, &docs.Request{
				InsertText: &docs.InsertTextRequest{
					Location: &docs.Location{Index: edit.Index},
					Text:     edit.Text,
				},
			})
		default:
			return nil, fmt.Errorf("%w: unknown edit kind %q", docsync.ErrValidation, edit.Kind)
		}
	}
	if batch.RequiredRevisionID != "" {
		req.WriteControl = &docs.WriteControl{RequiredRevisionId: batch.RequiredRevisionID}
	}
	return req, nil
}

// toDocument keeps paragraphs as blocks and flattens tables and tables of
// contents into one block each. Section breaks carry no text and are dropped.
func toDocument(doc *docs.Document) docsync.Document {
	out := docsync.Document{ID: doc.DocumentId, Title: doc.Title, RevisionID: doc.RevisionId}
	if doc.Body == nil {
		return out
	}
	for _, el := range doc.Body.Content {
		if el == nil || el.SectionBreak != nil {
			continue
		}
		runs := collectRuns(nil, el)
		if el.Paragraph == nil && len(runs) == 0 {
			continue
		}
		out.Blocks = append(out.Blocks, docsync.Block{
			StartIndex: el.StartIndex,
			EndIndex:   el.EndIndex,
			Runs:       runs,
		})
	}
	return out
}

func collectRuns(runs []docsync.Run, el *docs.StructuralElement) []docsync.Run {
	switch {
	case el.Paragraph != nil:
		for _, pe := range el.Paragraph.Elements {
			if pe != nil && pe.TextRun != nil {
				runs = append(runs, docsync.Run{Text: pe.TextRun.Content})
			}
		}
	case el.Table != nil:
		for _, row := range el.Table.TableRows {
			for _, cell := range row.TableCells {
				for _, inner := range cell.Content {
					runs = collectRuns(runs, inner)
				}
			}
		}
	case el.TableOfContents != nil:
		for _, inner := range el.TableOfContents.Content {
			runs = collectRuns(runs, inner)
		}
	}
	return runs
}

func (g *Gateway) ListDocuments(ctx context.Context, sess docsync.Session) ([]docsync.File, error) {
	srv, err := g.driveService(ctx, sess)
	if err != nil {
		return nil, err
	}
	files := make([]docsync.File, 0, 16)
	err = srv.Files.List().
		Q(listQuery).
		Fields(listFields).
		OrderBy("createdTime desc").
		PageSize(100).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				created, _ := time.Parse(time.RFC3339, f.CreatedTime)
				files = append(files, docsync.File{ID: f.Id, Name: f.Name, Link: f.WebViewLink, CreatedAt: created})
			}
			return nil
		})
	if err != nil {
		return nil, classify("list files", err)
	}
	return files, nil
}

func (g *Gateway) ExportDocument(ctx context.Context, sess docsync.Session, id, mimeType string) (docsync.Exported, error) {
	srv, err := g.driveService(ctx, sess)
	if err != nil {
		return docsync.Exported{}, err
	}
	resp, err := srv.Files.Export(id, mimeType).Context(ctx).Download()
	if err != nil {
		return docsync.Exported{}, classify("export file", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxExportBytes+1))
	if err != nil {
		return docsync.Exported{}, fmt.Errorf("%w: read export: %v", docsync.ErrTransient, err)
	}
	if len(data) > maxExportBytes {
		return docsync.Exported{}, fmt.Errorf("%w: export exceeds %d bytes", docsync.ErrValidation, maxExportBytes)
	}
	return docsync.Exported{Data: data, MimeType: mimeType}, nil
}

func (g *Gateway) Identify(ctx context.Context, sess docsync.Session) (docsync.Identity, error) {
	srv, err := oauth2api.NewService(ctx, g.options(ctx, sess, g.endpoints.Userinfo)...)
	if err != nil {
		return docsync.Identity{}, fmt.Errorf("userinfo client: %w", err)
	}
	info, err := srv.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return docsync.Identity{}, classify("get userinfo", err)
	}
	return docsync.Identity{Subject: info.Id, Email: info.Email, Name: info.Name}, nil
}
