package validation

import (
	"strings"
	"unicode"
)

// SanitizeForFormulaInjection prepends a single quote if the string starts with
// a formula character, so spreadsheet software treats it as text.
func SanitizeForFormulaInjection(s string) string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) > 0 {
		switch trimmed[0] {
		case '=', '+', '-', '@', '\t', '\r':
			return "'" + s
		}
	}
	return s
}

// StripUnprintable removes non-printable characters, keeping tab, newline and
// carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}

// SanitizeCell prepares user-supplied text for an exported spreadsheet cell.
func SanitizeCell(s string) string {
	return SanitizeForFormulaInjection(StripUnprintable(s))
}
