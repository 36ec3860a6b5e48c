package docsync

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Format names an editor markup representation.
type Format string

const (
	FormatAuto        Format = ""
	FormatHTML        Format = "html"
	FormatProseMirror Format = "prosemirror"
	FormatText        Format = "text"
)

func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case FormatAuto, "auto":
		return FormatAuto, nil
	case FormatHTML, FormatProseMirror, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unsupported content format %q", ErrValidation, value)
	}
}

// DetectFormat guesses the representation of markup. Text that merely starts
// with "<" stays text unless it contains a recognised HTML element, so plain
// letters such as "<Recipient>\nDear Sam" survive a round trip untouched.
func DetectFormat(markup string) Format {
	trimmed := strings.TrimSpace(markup)
	switch {
	case strings.HasPrefix(trimmed, "{"):
		var head struct {
			Type string `json:"type"`
		}
		if json.Unmarshal([]byte(trimmed), &head) == nil && head.Type == "doc" {
			return FormatProseMirror
		}
	case strings.HasPrefix(trimmed, "<") && hasKnownElement(trimmed):
		return FormatHTML
	}
	return FormatText
}

var formattingElements = map[atom.Atom]bool{
	atom.Br: true, atom.Span: true, atom.Strong: true, atom.Em: true, atom.B: true,
	atom.I: true, atom.U: true, atom.S: true, atom.A: true, atom.Code: true,
	atom.Sub: true, atom.Sup: true, atom.Ol: true, atom.Ul: true, atom.Table: true,
	atom.Td: true, atom.Th: true, atom.Html: true, atom.Body: true,
}

func hasKnownElement(markup string) bool {
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if blockElements[a] || formattingElements[a] {
				return true
			}
		}
	}
}

// ToText converts editor markup into the plain text written to the remote
// document. Line breaks are "\n". Structured formats lose their final block
// terminator because the remote document supplies its own.
func ToText(markup string, format Format) (string, error) {
	markup = strings.ReplaceAll(markup, "\r\n", "\n")
	if format == FormatAuto {
		format = DetectFormat(markup)
	}
	switch format {
	case FormatText:
		return markup, nil
	case FormatHTML:
		return htmlToText(markup)
	case FormatProseMirror:
		var root map[string]any
		if err := json.Unmarshal([]byte(markup), &root); err != nil {
			return "", fmt.Errorf("%w: malformed document json: %v", ErrValidation, err)
		}
		return strings.TrimSuffix(ProseMirrorToText(root), "\n"), nil
	default:
		return "", fmt.Errorf("%w: unsupported content format %q", ErrValidation, format)
	}
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Blockquote: true, atom.Pre: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Hr: true,
}

var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Head: true, atom.Title: true,
}

// htmlToText flattens editor HTML. Every block ends a line and <br> ends a
// line. A <br> that closes its block stands in for the block terminator, so
// Quill's empty line "<p><br></p>" yields exactly one newline.
func htmlToText(markup string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	var (
		b           strings.Builder
		skip        int
		pre         int
		atLineStart = true
		brEnded     bool
	)
	newline := func() {
		b.WriteByte('\n')
		atLineStart = true
	}
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", fmt.Errorf("%w: malformed html: %v", ErrValidation, err)
			}
			return strings.TrimSuffix(b.String(), "\n"), nil
		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := string(z.Text())
			if pre == 0 {
				if strings.TrimSpace(text) == "" && strings.Contains(text, "\n") {
					continue
				}
				text = strings.ReplaceAll(text, "\n", " ")
			}
			if text != "" {
				b.WriteString(text)
				atLineStart = false
				brEnded = false
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case skippedElements[a]:
				if tt == html.StartTagToken {
					skip++
				}
			case skip > 0:
			case a == atom.Br:
				newline()
				brEnded = true
			case blockElements[a]:
				if a == atom.Pre && tt == html.StartTagToken {
					pre++
				}
				if !atLineStart {
					newline()
				}
				brEnded = false
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case skippedElements[a]:
				if skip > 0 {
					skip--
				}
			case skip > 0:
			case blockElements[a]:
				if a == atom.Pre && pre > 0 {
					pre--
				}
				if brEnded {
					brEnded = false
					continue
				}
				if !atLineStart {
					newline()
				}
			}
		}
	}
}
