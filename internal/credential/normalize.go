package credential

import "strings"

// Normalize produces the comparison key for a credential value.
//
// Plates are uppercased with every non-alphanumeric character stripped,
// so "ab-123 cd" and "AB123CD" compare equal. Other types are uppercased
// with surrounding whitespace trimmed; their on-device representation is
// already canonical.
func Normalize(t Type, value string) string {
	if t == TypePlate {
		var b strings.Builder
		b.Grow(len(value))
		for _, r := range value {
			switch {
			case r >= 'a' && r <= 'z':
				b.WriteRune(r - ('a' - 'A'))
			case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	return strings.ToUpper(strings.TrimSpace(value))
}

// Unread sentinel values reported by LPR cameras when no plate could be
// read from the frame.
const (
	SentinelUnreadES = "NO_LEIDA"
	SentinelUnknown  = "unknown"
)

// IsUnread reports whether a detected plate value is an unread sentinel.
// Unread values never resolve to an identity and always deny. The check
// is case-insensitive since brands disagree on sentinel casing.
func IsUnread(value string) bool {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", SentinelUnreadES, strings.ToUpper(SentinelUnknown):
		return true
	}
	return false
}
