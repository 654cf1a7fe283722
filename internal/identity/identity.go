// Package identity canonicalizes chat transport addresses into customer identities.
package identity

import (
	"regexp"
	"strings"

	"github.com/jubot-ia/orderbot/internal/domain"
)

const (
	// CountryCode is prefixed to local numbers.
	CountryCode = "55"
	// UserServer is the transport domain used when an address must be built from a phone.
	UserServer = "s.whatsapp.net"

	localMobileDigits = 11
	maxPhoneDigits    = 13
)

var nonDigitPattern = regexp.MustCompile(`\D`)

// Normalize derives the canonical ID and display phone from a raw transport address.
// Malformed input yields an empty DisplayPhone rather than an error.
func Normalize(raw string) domain.CustomerIdentity {
	user, server := splitAddress(raw)
	canonical := user
	if server != "" {
		canonical = user + "@" + server
	}
	return domain.CustomerIdentity{
		CanonicalID:  canonical,
		DisplayPhone: NormalizePhone(user),
	}
}

// NormalizePhone strips non-digits and applies the country-code rules:
// 11 digits get the prefix, more than 13 keep only the last 11 plus the prefix.
func NormalizePhone(raw string) string {
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		raw = raw[:i]
	}
	digits := Digits(raw)
	switch {
	case len(digits) == localMobileDigits:
		return CountryCode + digits
	case len(digits) > maxPhoneDigits:
		return CountryCode + digits[len(digits)-localMobileDigits:]
	default:
		return digits
	}
}

// AddressForPhone builds a transport address from a stored phone number.
// It returns "" when the phone has no digits.
func AddressForPhone(phone string) string {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return ""
	}
	return normalized + "@" + UserServer
}

// Digits removes every non-digit character.
func Digits(s string) string {
	return nonDigitPattern.ReplaceAllString(s, "")
}

// PhonesMatch reports whether two phone numbers refer to the same line,
// tolerating a country-code prefix present on only one side.
func PhonesMatch(a, b string) bool {
	da, db := Digits(a), Digits(b)
	if da == "" || db == "" {
		return false
	}
	return strings.HasSuffix(da, db) || strings.HasSuffix(db, da)
}

// splitAddress returns the user part without device suffix and the server part.
func splitAddress(raw string) (string, string) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	user, server, _ := strings.Cut(raw, "@")
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return user, server
}
