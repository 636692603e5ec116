// Package validation contains input checks and value normalisers.
package validation

import (
	"net/mail"
	"strings"
	"unicode"
)

// NormalizeMobile reduces a mobile number to a canonical digit string so
// numbers entered as "+44 7700 900123", "07700900123" or "44-7700-900123"
// compare equal. Returns an empty string when the input holds no digits.
func NormalizeMobile(mobile string) string {
	var b strings.Builder
	for _, ch := range mobile {
		if unicode.IsDigit(ch) {
			b.WriteRune(ch)
		}
	}

	digits := b.String()
	if digits == "" {
		return ""
	}

	// Fold the UK country code onto the national 0-prefixed form.
	if strings.HasPrefix(digits, "44") && len(digits) > 10 {
		digits = "0" + digits[2:]
	}
	if !strings.HasPrefix(digits, "0") && len(digits) == 10 {
		digits = "0" + digits
	}

	return digits
}

// IsValidMembershipNumber reports whether the value is a non-empty string of
// digits, the format used by the membership registry.
func IsValidMembershipNumber(number string) bool {
	if number == "" {
		return false
	}
	for _, ch := range number {
		if !unicode.IsDigit(ch) {
			return false
		}
	}
	return true
}

// IsValidEmail reports whether the value parses as a single email address.
func IsValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
