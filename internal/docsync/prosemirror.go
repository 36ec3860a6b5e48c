package docsync

import "strings"

// ProseMirrorToText flattens a ProseMirror JSON tree (as decoded into
// map[string]any) into plain lines. Marks are dropped.
func ProseMirrorToText(doc map[string]any) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	renderNode(&b, doc)
	return b.String()
}

func renderNode(b *strings.Builder, node map[string]any) {
	nodeType, _ := node["type"].(string)
	switch nodeType {
	case "":
		return
	case "paragraph", "heading", "codeBlock":
		renderContent(b, node["content"])
		b.WriteByte('\n')
	case "text":
		text, _ := node["text"].(string)
		b.WriteString(text)
	case "hardBreak":
		b.WriteByte('\n')
	case "horizontalRule", "image":
	default:
		// doc, lists, blockquote, tables: their children carry the lines.
		renderContent(b, node["content"])
	}
}

func renderContent(b *strings.Builder, content any) {
	items, ok := content.([]any)
	if !ok {
		return
	}
	for _, item := range items {
		if node, ok := item.(map[string]any); ok {
			renderNode(b, node)
		}
	}
}
