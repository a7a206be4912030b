// Package email derives display data from email addresses.
package email

import (
	"strings"
	"unicode"
)

// DisplayName guesses a human name from the local part of an address:
// "ana.maria_popescu@upb.ro" becomes "Ana Popescu". It returns "" when the
// local part has no usable words.
func DisplayName(address string) string {
	localPart := strings.TrimSpace(address)
	if at := strings.IndexByte(localPart, '@'); at >= 0 {
		localPart = localPart[:at]
	}
	localPart, _, _ = strings.Cut(localPart, "+")

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || unicode.IsDigit(r)
	})
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return capitalize(parts[0])
	}
	return capitalize(parts[0]) + " " + capitalize(parts[len(parts)-1])
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
