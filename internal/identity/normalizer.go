// Package identity resolves raw contact signals (phone, email, name) to
// stable customer identities and maintains the identifier registry, including
// merging identities when new evidence links previously separate records.
package identity

import (
	"strings"
)

// NormalizePhone canonicalizes a raw phone number into an E.164-like key:
// all non-digits stripped, default country code applied to 10-digit numbers,
// and a leading "+". The function is total: input with no digits at all is
// passed through lower-cased and trimmed as a best-effort key.
func NormalizePhone(raw, countryCode string) string {
	digits := keepDigits(raw)
	if digits == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	switch {
	case len(digits) == 10:
		return "+" + countryCode + digits
	case len(digits) == 11 && strings.HasPrefix(digits, countryCode):
		return "+" + digits
	default:
		return "+" + digits
	}
}

// NormalizeEmail canonicalizes an email address: lower-cased and trimmed.
// Total: malformed input still yields a usable best-effort key.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizeName lower-cases a display name and collapses runs of whitespace,
// so name matching is insensitive to casing and spacing.
func NormalizeName(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// ExtractPhoneFromGatewayEmail detects SMS-gateway addresses whose local part
// is itself a phone number (e.g. "5550100@smsgateway.com") and returns the
// embedded phone identifier, or "" when the address is not a gateway address.
// This is what lets inbound gateway email auto-link to an SMS identity
// without explicit user action.
func ExtractPhoneFromGatewayEmail(email, countryCode string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	local := strings.TrimSpace(email[:at])
	leading := leadingDigits(local)
	if leading == "" {
		return ""
	}

	// Either the whole local part is a number (gateways use the subscriber
	// number verbatim, sometimes without area code), or it starts with a
	// full 10/11-digit number.
	if len(leading) == len(local) && len(leading) >= 7 {
		return NormalizePhone(leading, countryCode)
	}
	if len(leading) == 10 || len(leading) == 11 {
		return NormalizePhone(leading, countryCode)
	}
	return ""
}

// PhonesMatch reports whether two normalized phone identifiers refer to the
// same subscriber. Exact matches always do; a shorter number (gateway local
// parts often omit the country or area code) matches when it is a suffix of
// the longer one and carries at least 7 digits.
func PhonesMatch(a, b string) bool {
	da := keepDigits(a)
	db := keepDigits(b)
	if da == "" || db == "" {
		return a == b
	}
	if da == db {
		return true
	}
	shorter, longer := da, db
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	return len(shorter) >= 7 && strings.HasSuffix(longer, shorter)
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func leadingDigits(s string) string {
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}
