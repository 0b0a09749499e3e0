// Package domain holds the typed identifiers shared across bounded contexts.
// Parsing lives at trust boundaries: a NationalID or Mobile that exists in the
// program has already passed format validation.
package domain

import (
	dErrors "otpgate/pkg/domain-errors"
)

// NationalID is a citizen identifier: exactly 12 decimal digits.
type NationalID string

// Mobile is a registered contact number: exactly 10 decimal digits, without
// country prefix. Gateways add the prefix at the provider boundary.
type Mobile string

const (
	nationalIDLen = 12
	mobileLen     = 10
)

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseNationalID validates raw input into a NationalID.
func ParseNationalID(raw string) (NationalID, error) {
	if len(raw) != nationalIDLen || !allDigits(raw) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "national_id must be 12 digits")
	}
	return NationalID(raw), nil
}

// ParseMobile validates raw input into a Mobile.
func ParseMobile(raw string) (Mobile, error) {
	if len(raw) != mobileLen || !allDigits(raw) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "mobile must be 10 digits")
	}
	return Mobile(raw), nil
}

func (n NationalID) String() string { return string(n) }

// Masked redacts all but the last four digits for logs and audit records.
func (n NationalID) Masked() string {
	return maskTail(string(n))
}

func (m Mobile) String() string { return string(m) }

// Masked redacts all but the last four digits for UI confirmation.
func (m Mobile) Masked() string {
	return maskTail(string(m))
}

func maskTail(s string) string {
	if len(s) <= 4 {
		return "*****"
	}
	return "*****" + s[len(s)-4:]
}
