package render

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"
)

var (
	plainURLRe = regexp.MustCompile(`(?i)\bhttps?://[\w\-\._~:/%\?#\[\]@!$&'()*+,;=]+`)
	schemeRe   = regexp.MustCompile(`(?i)^[a-z][a-z0-9+\-.]*://\S+$`)
)

// detectPlainTextLinks replaces URLs in plain text with [n] references
func detectPlainTextLinks(input string) ([]LinkRef, string) {
	links := make([]LinkRef, 0, 4)
	replaced := plainURLRe.ReplaceAllStringFunc(input, func(m string) string {
		links = append(links, LinkRef{Index: len(links) + 1, URL: m, Text: m})
		return fmt.Sprintf("[%d]", len(links))
	})
	return links, replaced
}

// sanitizeBodyPreservingCode sanitizes every line outside ``` fences
func sanitizeBodyPreservingCode(s string) string {
	lines := strings.Split(s, "\n")
	inCode := false
	for i, ln := range lines {
		if strings.HasPrefix(strings.TrimSpace(ln), "```") {
			inCode = !inCode
			continue
		}
		if !inCode {
			lines[i] = sanitizeForTerminal(ln)
		}
	}
	return strings.Join(lines, "\n")
}

// sanitizeForTerminal replaces rich-text glyphs that render as tofu with ASCII
func sanitizeForTerminal(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '\u00A0', r == '\u202F', r >= '\u2000' && r <= '\u200A':
			b.WriteRune(' ')
		case r == '\u200B', r == '\u200C', r == '\u200D', r == '\uFEFF', r == '\u034F', r == '\u2060', r == '\u00AD':
		case r == '\u2013', r == '\u2014':
			b.WriteRune('-')
		case r == '\u2022', r == '\u2043', r == '\u25AA', r == '\u25CF', r == '\u25E6':
			b.WriteRune('-')
			if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
				b.WriteRune(' ')
			}
		case r == '\u2018', r == '\u2019':
			b.WriteRune('\'')
		case r == '\u201C', r == '\u201D':
			b.WriteRune('"')
		case r == '\u2026':
			b.WriteString("...")
		case unicode.IsControl(r) && r != '\n' && r != '\t':
		case unicode.Is(unicode.So, r):
		default:
			b.WriteRune(r)
		}
	}
	return collapseBlankLines(b.String(), 2)
}

// dedupeConsecutiveLines drops repeated lines and empty pipe rows
func dedupeConsecutiveLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	prev := ""
	for _, ln := range lines {
		cur := strings.TrimRight(ln, " ")
		trimmed := strings.TrimSpace(cur)
		if trimmed != "" && trimmed == prev {
			continue
		}
		if trimmed == "|" || trimmed == "| |" {
			continue
		}
		out = append(out, cur)
		prev = trimmed
	}
	return collapseBlankLines(strings.Join(out, "\n"), 2)
}

// dedupeNearDuplicateParagraphs drops a paragraph already seen within the
// last window paragraphs. Signatures repeated by every reply are the usual case.
func dedupeNearDuplicateParagraphs(s string, window int) string {
	blocks := strings.Split(s, "\n\n")
	if len(blocks) <= 1 {
		return s
	}
	out := make([]string, 0, len(blocks))
	recent := make([]string, 0, window+1)
	for _, blk := range blocks {
		key := strings.Join(strings.Fields(sanitizeForTerminal(blk)), " ")
		if key != "" && containsString(recent, key) {
			continue
		}
		out = append(out, strings.TrimRight(blk, "\n"))
		recent = append(recent, key)
		if len(recent) > window {
			recent = recent[1:]
		}
	}
	return collapseBlankLines(strings.Join(out, "\n\n"), 2)
}

// collapsePipeNavRuns keeps one copy of repeated "A | B | C" navigation lines
func collapsePipeNavRuns(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	lastNav := ""
	for _, ln := range lines {
		trimmed := strings.TrimSpace(ln)
		if strings.Count(trimmed, "|") < 2 {
			lastNav = ""
			out = append(out, ln)
			continue
		}
		norm := strings.Join(strings.Fields(strings.ReplaceAll(trimmed, "|", " ")), " ")
		if norm == lastNav {
			continue
		}
		lastNav = norm
		out = append(out, ln)
	}
	return strings.Join(out, "\n")
}

// WrapTextPreserving wraps text to width. Quote prefixes are repeated on
// continuation lines; code fences, PGP blocks and URLs are never broken.
func WrapTextPreserving(input string, width int) string {
	if width <= 0 {
		return input
	}
	lines := strings.Split(normalizeNewlines(input), "\n")
	out := make([]string, 0, len(lines))
	inCode, inPGP := false, false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCode = !inCode
			out = append(out, line)
			continue
		}
		if strings.HasPrefix(line, "-----BEGIN ") {
			inPGP = true
		}
		if inCode || inPGP {
			out = append(out, line)
			if strings.HasPrefix(line, "-----END ") {
				inPGP = false
			}
			continue
		}
		out = append(out, wrapLine(line, width)...)
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, width int) []string {
	prefix, rest := "", line
	for strings.HasPrefix(rest, "> ") {
		prefix += "> "
		rest = strings.TrimPrefix(rest, "> ")
	}
	tokens := strings.Fields(rest)
	if len(tokens) == 0 {
		return []string{strings.TrimRight(prefix, " ")}
	}

	var lines []string
	cur := prefix
	flush := func() {
		lines = append(lines, strings.TrimRight(cur, " "))
		cur = prefix
	}
	for _, tok := range tokens {
		tokWidth := runewidth.StringWidth(tok)
		curWidth := runewidth.StringWidth(cur)
		empty := cur == prefix

		switch {
		case empty && curWidth+tokWidth <= width:
			cur += tok
		case !empty && curWidth+1+tokWidth <= width:
			cur += " " + tok
		case schemeRe.MatchString(tok) || tokWidth <= width-runewidth.StringWidth(prefix):
			if !empty {
				flush()
			}
			cur += tok
		default:
			// hard cut of a single overlong token
			if !empty {
				flush()
			}
			for _, r := range tok {
				if runewidth.StringWidth(cur)+runewidth.RuneWidth(r) > width && cur != prefix {
					flush()
				}
				cur += string(r)
			}
		}
	}
	flush()
	return lines
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return collapseBlankLines(s, 2)
}

// collapseBlankLines limits runs of consecutive newlines to n
func collapseBlankLines(s string, n int) string {
	long := strings.Repeat("\n", n+1)
	short := strings.Repeat("\n", n)
	for strings.Contains(s, long) {
		s = strings.ReplaceAll(s, long, short)
	}
	return s
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
