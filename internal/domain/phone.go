package domain

import "strings"

// ─── Identity Normalization ─────────────────────────────────────────────────
// A customer identity is a canonical phone number string. Two raw inputs
// that normalize to the same canonical form address the same ledger record,
// so every entry point must normalize before touching the store.

// PhoneOptions bounds the normalizer. The defaults match the store's
// original market (Indonesian numbers in 628xxxxxxxxx form).
type PhoneOptions struct {
	CountryCode string // international prefix without "+", e.g. "62"
	MinDigits   int    // minimum canonical length
	MaxDigits   int    // maximum canonical length
}

// DefaultPhoneOptions returns the production defaults.
func DefaultPhoneOptions() PhoneOptions {
	return PhoneOptions{
		CountryCode: "62",
		MinDigits:   10,
		MaxDigits:   15,
	}
}

// NormalizePhone canonicalizes a raw phone string into an identity key.
//
// Rules: strip whitespace, hyphens, dots and parentheses; the remainder must
// be digits with an optional leading "+"; "+<cc>…" and "0…" both map to
// "<cc>…"; a number already starting with the country code passes through.
// Everything else is ErrInvalidIdentity.
func NormalizePhone(raw string, opts PhoneOptions) (string, error) {
	phone := strings.TrimSpace(raw)
	phone = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '.', '(', ')':
			return -1
		}
		return r
	}, phone)

	if phone == "" {
		return "", ErrInvalidIdentity
	}

	plus := strings.HasPrefix(phone, "+")
	digits := phone
	if plus {
		digits = phone[1:]
	}
	if digits == "" || !isAllDigits(digits) {
		return "", ErrInvalidIdentity
	}

	cc := opts.CountryCode
	switch {
	case plus && strings.HasPrefix(digits, cc):
		phone = digits
	case !plus && strings.HasPrefix(digits, cc):
		phone = digits
	case !plus && strings.HasPrefix(digits, "0"):
		phone = cc + digits[1:]
	default:
		return "", ErrInvalidIdentity
	}

	if len(phone) < opts.MinDigits || len(phone) > opts.MaxDigits {
		return "", ErrInvalidIdentity
	}
	return phone, nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
