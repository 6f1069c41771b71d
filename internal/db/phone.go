package db

import "strings"

// NormalizePhone reduces a phone number to its digits. Contact rows,
// opt-outs, and dispatch targets all store this canonical form so
// "+55 11 91234-5678" and "5511912345678" resolve to the same row.
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
