package wa

import "strings"

const (
	// PersonalSuffix is the JID domain for direct chats.
	PersonalSuffix = "@s.whatsapp.net"
	// GroupSuffix is the JID domain for group chats.
	GroupSuffix = "@g.us"

	countryCode = "62"
)

// FormatNumber converts a loosely formatted Indonesian phone number into a
// canonical personal JID. The normalization is idempotent: a leading national
// trunk "0" is treated as equivalent to the country code, and "62" is never
// prepended twice.
func FormatNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if strings.HasPrefix(digits, "0") {
		digits = countryCode + digits[1:]
	}
	if !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}

	return digits + PersonalSuffix
}

// PersonalJID returns the canonical personal address for raw. Inputs that
// already carry a domain suffix are used as-is.
func PersonalJID(raw string) string {
	if strings.Contains(raw, "@") {
		return raw
	}
	return FormatNumber(raw)
}

// GroupJID appends the group domain when the id does not already carry one.
func GroupJID(id string) string {
	if strings.HasSuffix(id, GroupSuffix) {
		return id
	}
	return id + GroupSuffix
}
