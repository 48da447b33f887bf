package render

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// htmlText accumulates terminal text while walking an HTML document
type htmlText struct {
	b          strings.Builder
	links      []LinkRef
	quoteDepth int
	inPre      bool
	cidNames   map[string]string
}

// renderHTMLToText converts an HTML body to text and collects its links.
// cidNames resolves inline image references to attachment names.
func renderHTMLToText(src string, cidNames map[string]string) (string, []LinkRef, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse HTML body: %w", err)
	}
	w := &htmlText{cidNames: cidNames}
	w.visit(doc)
	return strings.TrimSpace(w.b.String()), w.links, nil
}

func (w *htmlText) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.visit(c)
	}
}

func (w *htmlText) visit(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.ElementNode:
	default:
		w.children(n)
		return
	}

	switch strings.ToLower(n.Data) {
	case "head", "style", "script", "title", "meta", "link":
		return
	case "div", "section", "tr":
		w.children(n)
		w.b.WriteByte('\n')
	case "h1", "h2", "h3", "h4", "h5", "h6":
		if t := strings.TrimSpace(innerText(n)); t != "" {
			w.b.WriteString(t)
			w.b.WriteString("\n\n")
		}
	case "hr":
		w.b.WriteString("\n-----\n")
	case "br":
		w.b.WriteByte('\n')
	case "p":
		w.children(n)
		w.b.WriteString("\n\n")
	case "ul", "ol":
		w.list(n, strings.EqualFold(n.Data, "ol"))
	case "blockquote":
		w.quoteDepth++
		w.children(n)
		w.quoteDepth--
		w.b.WriteByte('\n')
	case "pre", "code":
		was := w.inPre
		if !was {
			w.b.WriteString("```\n")
		}
		w.inPre = true
		w.children(n)
		w.inPre = was
		if !was {
			w.b.WriteString("\n```\n")
		}
	case "a":
		w.anchor(n)
	case "img":
		w.image(n)
	case "table":
		w.table(n)
	default:
		w.children(n)
	}
}

func (w *htmlText) text(data string) {
	text := sanitizeForTerminal(data)
	if strings.TrimSpace(text) == "" {
		// keep the gap between inline elements
		if text != "" && !strings.Contains(text, "\n") && !strings.HasSuffix(w.b.String(), " ") {
			w.b.WriteByte(' ')
		}
		return
	}
	if w.quoteDepth == 0 || strings.HasPrefix(text, "> ") {
		w.b.WriteString(text)
		return
	}
	prefix := strings.Repeat("> ", min(w.quoteDepth, 3))
	for i, ln := range strings.Split(text, "\n") {
		if i > 0 {
			w.b.WriteByte('\n')
		}
		w.b.WriteString(prefix)
		w.b.WriteString(strings.TrimRightFunc(ln, unicode.IsSpace))
	}
}

func (w *htmlText) list(n *html.Node, ordered bool) {
	item := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || !strings.EqualFold(c.Data, "li") {
			continue
		}
		item++
		if ordered {
			fmt.Fprintf(&w.b, "%d. ", item)
		} else {
			w.b.WriteString("- ")
		}
		w.children(c)
		w.b.WriteByte('\n')
	}
}

func (w *htmlText) anchor(n *html.Node) {
	href := attr(n, "href")
	label := strings.TrimSpace(innerText(n))
	if label == "" {
		label = firstAttr(n, "aria-label", "title", "alt")
	}
	if label == "" {
		label = href
	}
	if href == "" || strings.HasPrefix(strings.ToLower(href), "mailto:") && label == strings.TrimPrefix(href, "mailto:") {
		w.b.WriteString(label)
		return
	}
	ref := LinkRef{Index: len(w.links) + 1, URL: href, Text: label}
	w.links = append(w.links, ref)
	fmt.Fprintf(&w.b, "%s [%d]", label, ref.Index)
}

func (w *htmlText) image(n *html.Node) {
	src := attr(n, "src")
	name := firstAttr(n, "alt", "title")
	if cid, ok := strings.CutPrefix(src, "cid:"); ok {
		if known := w.cidNames[strings.Trim(cid, "<>")]; known != "" {
			name = known
		}
	}
	if name == "" {
		return
	}
	fmt.Fprintf(&w.b, "[image: %s]", name)
}

// table renders each row on one line. Rows made only of single characters
// (tracking grids in newsletters) are concatenated.
func (w *htmlText) table(n *html.Node) {
	var rows func(n *html.Node)
	rows = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "tr") {
			cells := make([]string, 0, 8)
			for td := n.FirstChild; td != nil; td = td.NextSibling {
				if td.Type == html.ElementNode && (strings.EqualFold(td.Data, "td") || strings.EqualFold(td.Data, "th")) {
					cells = append(cells, strings.TrimSpace(innerText(td)))
				}
			}
			if line := joinCells(cells); strings.TrimSpace(line) != "" {
				w.b.WriteString(line)
				w.b.WriteByte('\n')
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rows(c)
		}
	}
	rows(n)
}

func joinCells(cells []string) string {
	if len(cells) >= 5 {
		single := true
		for _, c := range cells {
			if len([]rune(c)) > 1 {
				single = false
				break
			}
		}
		if single {
			return strings.Join(cells, "")
		}
	}
	return strings.Join(cells, " | ")
}

func innerText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(&b, c)
	}
	return b.String()
}

func collectText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(sanitizeForTerminal(n.Data))
	case html.ElementNode:
		switch strings.ToLower(n.Data) {
		case "br":
			b.WriteByte('\n')
		case "p":
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				collectText(b, c)
			}
			b.WriteString("\n\n")
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func firstAttr(n *html.Node, keys ...string) string {
	for _, k := range keys {
		if v := attr(n, k); v != "" {
			return v
		}
	}
	return ""
}
