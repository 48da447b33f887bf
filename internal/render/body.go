package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ajramos/crm-mailbox/internal/outlook"
)

// LinkRef is a hyperlink collected from a message body
type LinkRef struct {
	Index int
	URL   string
	Text  string
}

// FormatOptions controls terminal formatting of message bodies
type FormatOptions struct {
	WrapWidth int
	// HideSections renders the body alone, without [ATTACHMENTS] and [LINKS]
	HideSections bool
}

// FormatBody renders a message body for the terminal. HTML bodies are converted
// to text; links are replaced by [n] references listed in a trailing [LINKS]
// section, and non-inline attachments are listed under [ATTACHMENTS].
func FormatBody(body outlook.ItemBody, attachments []outlook.Attachment, opts FormatOptions) string {
	text, links := bodyText(body, attachments)

	if opts.WrapWidth > 0 {
		text = WrapTextPreserving(text, opts.WrapWidth)
	}
	text = sanitizeBodyPreservingCode(text)
	text = dedupeConsecutiveLines(text)
	text = dedupeNearDuplicateParagraphs(text, 8)
	text = collapsePipeNavRuns(text)

	if opts.HideSections {
		return text
	}

	out := &strings.Builder{}
	out.WriteString("[BODY]\n")
	out.WriteString(text)
	out.WriteString("\n\n")

	out.WriteString("[ATTACHMENTS]\n")
	listed := 0
	for _, a := range attachments {
		if a.IsInline {
			continue
		}
		listed++
		out.WriteString(FormatAttachmentLine(a))
		out.WriteByte('\n')
	}
	if listed == 0 {
		out.WriteString("None\n")
	}
	out.WriteByte('\n')

	out.WriteString("[LINKS]\n")
	if len(links) == 0 {
		out.WriteString("None\n")
	} else {
		sort.Slice(links, func(i, j int) bool { return links[i].Index < links[j].Index })
		for _, lr := range links {
			fmt.Fprintf(out, "(%d) %s\n", lr.Index, lr.URL)
		}
	}
	return out.String()
}

// BodyLinks returns the links of a body in reference order
func BodyLinks(body outlook.ItemBody) []LinkRef {
	_, links := bodyText(body, nil)
	return links
}

func bodyText(body outlook.ItemBody, attachments []outlook.Attachment) (string, []LinkRef) {
	var text string
	var links []LinkRef
	if strings.EqualFold(body.ContentType, outlook.ContentTypeHTML) && strings.TrimSpace(body.Content) != "" {
		if t, l, err := renderHTMLToText(body.Content, inlineNames(attachments)); err == nil {
			text, links = t, l
		}
	}
	if strings.TrimSpace(text) == "" && !strings.EqualFold(body.ContentType, outlook.ContentTypeHTML) {
		text = body.Content
	}
	text = normalizeNewlines(text)
	if len(links) == 0 {
		if detected, replaced := detectPlainTextLinks(text); len(detected) > 0 {
			links, text = detected, replaced
		}
	}
	return text, links
}

// FormatAttachmentLine renders "name (type, size)"
func FormatAttachmentLine(a outlook.Attachment) string {
	name := a.Name
	if name == "" {
		name = "(attachment)"
	}
	var meta []string
	if a.ContentType != "" {
		meta = append(meta, a.ContentType)
	}
	if a.Size > 0 {
		meta = append(meta, FormatSize(a.Size))
	}
	if len(meta) == 0 {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, strings.Join(meta, ", "))
}

// FormatSize renders a byte count with a binary unit
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// inlineNames maps content ids of inline attachments to their names so that
// <img src="cid:..."> can be shown by name.
func inlineNames(attachments []outlook.Attachment) map[string]string {
	if len(attachments) == 0 {
		return nil
	}
	names := make(map[string]string, len(attachments))
	for _, a := range attachments {
		if a.ContentID == "" {
			continue
		}
		names[strings.Trim(a.ContentID, "<>")] = a.Name
	}
	return names
}
