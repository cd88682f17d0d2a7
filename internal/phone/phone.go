package phone

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes user-entered phone numbers so that "(555) 123-4567",
// "555.123.4567" and "+15551234567" compare equal. Empty input yields "".
func Normalize(input string) string {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '(', ')', '-':
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if stripped == "" {
		return ""
	}
	if strings.HasPrefix(stripped, "+") {
		return stripped
	}

	digits := DigitsOnly(stripped)
	if digits == "" {
		return ""
	}
	if len(digits) == 10 {
		return "+1" + digits
	}
	return "+" + digits
}

// DigitsOnly drops every non-digit rune.
func DigitsOnly(input string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, input)
}

// Variants lists digit-only forms with and without the North American
// country code, for matching against numbers stored in mixed formats.
func Variants(input string) []string {
	digits := DigitsOnly(input)
	if digits == "" {
		return nil
	}

	variants := []string{digits}
	switch {
	case len(digits) == 10:
		variants = append(variants, "1"+digits)
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		variants = append(variants, digits[1:])
	}
	return variants
}
