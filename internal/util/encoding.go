package util

import (
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the NFC form of s. Document type names and property
// names are compared in this form.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

// IsNormalized reports whether s is already in NFC form.
func IsNormalized(s string) bool {
	return norm.NFC.IsNormalString(s)
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
