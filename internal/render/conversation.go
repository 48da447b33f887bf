package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajramos/crm-mailbox/internal/config"
	"github.com/ajramos/crm-mailbox/internal/outlook"
	"github.com/ajramos/crm-mailbox/internal/services"
	"github.com/derailed/tcell/v2"
	"github.com/mattn/go-runewidth"
)

const (
	senderWidth = 22
	dateWidth   = 8
	minRowWidth = 40
)

// ConversationRenderer formats conversation rows and message headers
type ConversationRenderer struct {
	UnreadColor     tcell.Color
	ReadColor       tcell.Color
	DraftColor      tcell.Color
	AttachmentColor tcell.Color

	now func() time.Time
}

// NewConversationRenderer creates a renderer with the default theme colors
func NewConversationRenderer() *ConversationRenderer {
	r := &ConversationRenderer{now: time.Now}
	r.UpdateFromConfig(config.DefaultColors())
	return r
}

// UpdateFromConfig applies theme colors
func (r *ConversationRenderer) UpdateFromConfig(colors *config.ColorsConfig) {
	if colors == nil {
		return
	}
	r.UnreadColor = colors.Mail.UnreadColor.Color()
	r.ReadColor = colors.Mail.ReadColor.Color()
	r.DraftColor = colors.Mail.DraftColor.Color()
	r.AttachmentColor = colors.Mail.AttachmentColor.Color()
}

// FormatConversationRow renders "● Sender | Subject (n) 📎 | 3h" for the
// conversation list and returns the row color.
func (r *ConversationRenderer) FormatConversationRow(s services.ConversationSummary, maxWidth int) (string, tcell.Color) {
	if maxWidth < minRowWidth {
		maxWidth = minRowWidth
	}
	sender := s.From
	if sender == "" {
		sender = "(No sender)"
	}
	subject := s.Subject
	if subject == "" {
		subject = "(No subject)"
	}

	marker := " "
	if s.Unread {
		marker = "●"
	}
	var suffix strings.Builder
	if s.Count > 1 {
		fmt.Fprintf(&suffix, " (%d)", s.Count)
	}
	if s.HasAttachments {
		suffix.WriteString(" +att")
	}
	if s.IsDraft {
		suffix.WriteString(" [draft]")
	}

	// marker and separators take 2 + 3 + 3 columns
	subjectWidth := maxWidth - senderWidth - dateWidth - 8 - runewidth.StringWidth(suffix.String())
	if subjectWidth < 10 {
		subjectWidth = 10
	}
	row := fmt.Sprintf("%s %s | %s%s | %s",
		marker,
		fitWidth(sender, senderWidth),
		fitWidth(subject, subjectWidth),
		suffix.String(),
		rightFit(r.formatRelativeTime(s.LatestAt), dateWidth))
	return row, r.rowColor(s)
}

// FormatSearchResult renders one search-mode row: folder, sender, subject, date
func (r *ConversationRenderer) FormatSearchResult(m outlook.Message, maxWidth int) string {
	if maxWidth < minRowWidth {
		maxWidth = minRowWidth
	}
	folder := m.OriginalFolder
	if folder == "" {
		folder = "?"
	}
	sender := senderName(m.From)
	subjectWidth := maxWidth - 12 - senderWidth - dateWidth - 9
	if subjectWidth < 10 {
		subjectWidth = 10
	}
	return fmt.Sprintf("%s | %s | %s | %s",
		fitWidth(folder, 12),
		fitWidth(sender, senderWidth),
		fitWidth(m.Subject, subjectWidth),
		rightFit(r.formatRelativeTime(m.ReceivedDateTime), dateWidth))
}

func (r *ConversationRenderer) rowColor(s services.ConversationSummary) tcell.Color {
	switch {
	case s.IsDraft:
		return r.DraftColor
	case s.Unread:
		return r.UnreadColor
	default:
		return r.ReadColor
	}
}

// FormatMessageHeader renders the plain header block shown above a message body
func (r *ConversationRenderer) FormatMessageHeader(m outlook.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", m.Subject)
	fmt.Fprintf(&b, "From: %s\n", senderAddress(m.From))
	if len(m.ToRecipients) > 0 {
		fmt.Fprintf(&b, "To: %s\n", services.FormatRecipients(m.ToRecipients))
	}
	if len(m.CcRecipients) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", services.FormatRecipients(m.CcRecipients))
	}
	fmt.Fprintf(&b, "Date: %s", formatDate(m.ReceivedDateTime))
	if m.IsDraft {
		b.WriteString("\nStatus: draft")
	}
	return b.String()
}

// FormatThread renders a whole conversation in ascending order, each message
// as header plus body, separated by a rule.
func (r *ConversationRenderer) FormatThread(msgs []outlook.Message, width int) string {
	thread := services.Thread(msgs)
	parts := make([]string, 0, len(thread))
	for _, m := range thread {
		body := FormatBody(m.Body, nil, FormatOptions{WrapWidth: width, HideSections: true})
		if strings.TrimSpace(body) == "" {
			body = m.BodyPreview
		}
		parts = append(parts, r.FormatMessageHeader(m)+"\n\n"+body)
	}
	rule := "\n\n" + strings.Repeat("─", max(min(width, 80), 10)) + "\n\n"
	return strings.Join(parts, rule)
}

func (r *ConversationRenderer) formatRelativeTime(date time.Time) string {
	if date.IsZero() {
		return ""
	}
	diff := r.now().Sub(date)
	switch {
	case diff < time.Minute:
		return "now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(diff.Hours()/24))
	default:
		return date.Format("Jan 2")
	}
}

func formatDate(date time.Time) string {
	if date.IsZero() {
		return "-"
	}
	return date.Local().Format("Mon, 02 Jan 2006 15:04")
}

func senderName(from *outlook.Recipient) string {
	if from == nil {
		return "(No sender)"
	}
	if from.Name != "" {
		return from.Name
	}
	return from.Address
}

func senderAddress(from *outlook.Recipient) string {
	if from == nil {
		return "(No sender)"
	}
	return services.FormatRecipient(*from)
}

// fitWidth truncates by display width and pads on the right
func fitWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = runewidth.Truncate(s, width, "...")
	if pad := width - runewidth.StringWidth(s); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}

// rightFit truncates from the left and right-aligns
func rightFit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = runewidth.TruncateLeft(s, width, "")
	if pad := width - runewidth.StringWidth(s); pad > 0 {
		s = strings.Repeat(" ", pad) + s
	}
	return s
}
