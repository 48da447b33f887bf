package services

import (
	"regexp"
	"strings"

	"github.com/ajramos/crm-mailbox/internal/outlook"
)

var nameAddressPattern = regexp.MustCompile(`^(.*?)\s*<([^<>]+)>$`)

// ParseEmails turns "Name <a@b>, c@d; Other <e@f>" into recipients in input order.
// Tokens not shaped like "Name <address>" are taken whole as the address.
// Addresses are not validated.
func ParseEmails(input string) []outlook.Recipient {
	out := []outlook.Recipient{}
	tokens := strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == ';' })
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if m := nameAddressPattern.FindStringSubmatch(tok); m != nil {
			out = append(out, outlook.Recipient{
				Name:    strings.TrimSpace(m[1]),
				Address: strings.TrimSpace(m[2]),
			})
			continue
		}
		out = append(out, outlook.Recipient{Address: tok})
	}
	return out
}

// FormatRecipient renders the canonical "Name <address>" form, or the bare
// address when there is no name
func FormatRecipient(r outlook.Recipient) string {
	if strings.TrimSpace(r.Name) == "" {
		return r.Address
	}
	return r.Name + " <" + r.Address + ">"
}

// FormatRecipients joins recipients with ", "
func FormatRecipients(recipients []outlook.Recipient) string {
	parts := make([]string, 0, len(recipients))
	for _, r := range recipients {
		parts = append(parts, FormatRecipient(r))
	}
	return strings.Join(parts, ", ")
}
