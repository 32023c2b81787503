package telegraph

import "strings"

// Node is an element of Telegraph page content. Children hold strings and
// *Node values.
type Node struct {
	Tag      string `json:"tag"`
	Children []any  `json:"children,omitempty"`
}

// TextToNodes converts text with light markup to Telegraph content.
// Blank lines end paragraphs, "# " and "## " lines become h3 and h4
// headings, and consecutive "- " or "* " lines become one list.
func TextToNodes(text string) []any {
	var (
		nodes []any
		para  []string
		items []any
	)
	flushPara := func() {
		if len(para) == 0 {
			return
		}
		children := make([]any, 0, 2*len(para)-1)
		for i, line := range para {
			if i > 0 {
				children = append(children, &Node{Tag: "br"})
			}
			children = append(children, line)
		}
		nodes = append(nodes, &Node{Tag: "p", Children: children})
		para = nil
	}
	flushList := func() {
		if len(items) == 0 {
			return
		}
		nodes = append(nodes, &Node{Tag: "ul", Children: items})
		items = nil
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			flushPara()
			flushList()
		case strings.HasPrefix(line, "## "):
			flushPara()
			flushList()
			nodes = append(nodes, &Node{Tag: "h4", Children: []any{strings.TrimSpace(line[3:])}})
		case strings.HasPrefix(line, "# "):
			flushPara()
			flushList()
			nodes = append(nodes, &Node{Tag: "h3", Children: []any{strings.TrimSpace(line[2:])}})
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			flushPara()
			items = append(items, &Node{Tag: "li", Children: []any{strings.TrimSpace(line[2:])}})
		default:
			flushList()
			para = append(para, line)
		}
	}
	flushPara()
	flushList()
	return nodes
}
