package docsync

import (
	"fmt"
	"strings"
)

// Policy holds the offset conventions of a provider's content stream.
type Policy struct {
	// StartOffset is the first editable position. Google Docs reserves
	// offset 0 for the implicit section break.
	StartOffset int64
	// TrailingTerminator is the length of the final newline that every
	// document keeps and that cannot be deleted.
	TrailingTerminator int64
	// BlockSeparator joins blocks on load. Empty when each block's last run
	// already carries its newline.
	BlockSeparator string
	// AcceptsEmptyInsert reports whether an insert of "" is a valid request.
	AcceptsEmptyInsert bool
}

// GoogleDocsPolicy matches the Google Docs API indexing rules.
var GoogleDocsPolicy = Policy{
	StartOffset:        1,
	TrailingTerminator: 1,
	BlockSeparator:     "",
	AcceptsEmptyInsert: false,
}

type Synchronizer struct {
	Policy Policy
}

func New(policy Policy) *Synchronizer {
	return &Synchronizer{Policy: policy}
}

// ToLocal renders a fetched document as editor text. Formatting is not
// reconstructed and non-paragraph blocks are flattened run by run.
func (s *Synchronizer) ToLocal(doc Document) string {
	if len(doc.Blocks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, block := range doc.Blocks {
		if i > 0 {
			b.WriteString(s.Policy.BlockSeparator)
		}
		for _, run := range block.Runs {
			b.WriteString(run.Text)
		}
	}
	text := b.String()
	if s.Policy.TrailingTerminator > 0 {
		text = strings.TrimSuffix(text, "\n")
	}
	return text
}

// ReplaceOperation computes the edits that overwrite doc's content with
// markup. The delete, when present, always precedes the insert.
func (s *Synchronizer) ReplaceOperation(doc Document, markup string, format Format) ([]Edit, error) {
	text, err := ToText(markup, format)
	if err != nil {
		return nil, err
	}
	edits := make([]Edit, 0, 2)
	if n := len(doc.Blocks); n > 0 {
		start := s.Policy.StartOffset
		end := doc.Blocks[n-1].EndIndex - s.Policy.TrailingTerminator
		if end > start {
			edits = append(edits, Edit{Kind: EditDelete, Start: start, End: end})
		}
	}
	if insert := s.insert(text); insert != nil {
		edits = append(edits, *insert)
	}
	return edits, nil
}

// CreateOperation validates a new letter and returns the create request plus
// the insert to apply once the provider has assigned an id. The insert is
// nil when there is nothing to write.
func (s *Synchronizer) CreateOperation(title, markup string, format Format) (CreateRequest, *Edit, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return CreateRequest{}, nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	text, err := ToText(markup, format)
	if err != nil {
		return CreateRequest{}, nil, err
	}
	return CreateRequest{Title: title}, s.insert(text), nil
}

func (s *Synchronizer) insert(text string) *Edit {
	if text == "" && !s.Policy.AcceptsEmptyInsert {
		return nil
	}
	return &Edit{Kind: EditInsert, Index: s.Policy.StartOffset, Text: text}
}
