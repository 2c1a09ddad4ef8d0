package chain

import "strings"

const base58Chars = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// IsHexAddress reports whether s looks like a 20-byte hex address with
// a 0x prefix.
func IsHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// IsTronAddress validates a TRON Base58Check address format.
// Valid: starts with 'T', 34 characters, Base58 alphabet only.
func IsTronAddress(s string) bool {
	if len(s) != 34 || s[0] != 'T' {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune(base58Chars, c) {
			return false
		}
	}
	return true
}
