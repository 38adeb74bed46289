package utils

import (
	"strings"
	"unicode"
)

// NormalizePhone keeps only the digits of a phone number so "010-1234-5678"
// and "01012345678" are the same customer.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// JoinAddress concatenates the address fields used for zone matching
func JoinAddress(address, extra string) string {
	address = strings.TrimSpace(address)
	extra = strings.TrimSpace(extra)
	switch {
	case address == "":
		return extra
	case extra == "":
		return address
	}
	return address + " " + extra
}
