package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// ─── Address Derivation ─────────────────────────────────────────────────────
// An address is a prefix plus nine base36-ish characters derived from the
// secret key. Output must stay bit-exact: every existing wallet was derived
// with this exact sequence of hashes.

const (
	// DefaultAddressPrefix is the one-character prefix of v2 addresses.
	DefaultAddressPrefix = "k"

	addressBody = 9
)

var (
	addressBodyRe = regexp.MustCompile(`^[a-z0-9]{9}$`)
	prefixRe      = regexp.MustCompile(`^[a-z]$`)
)

// SHA256Hex returns the lowercase hex SHA-256 of s.
func SHA256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// DeriveAddress turns a secret key into its public address.
func DeriveAddress(secretKey, prefix string) string {
	var (
		protein [addressBody]byte
		used    [addressBody]bool
	)
	h := SHA256Hex(SHA256Hex(secretKey))

	for i := range protein {
		protein[i] = hexByte(h[:2])
		h = SHA256Hex(SHA256Hex(h))
	}

	var b strings.Builder
	b.Grow(len(prefix) + addressBody)
	b.WriteString(prefix)

	for j := 0; j < addressBody; {
		index := hexByte(h[2*j:2*j+2]) % addressBody
		if used[index] {
			h = SHA256Hex(h)
			continue
		}
		b.WriteByte(base36(protein[index]))
		used[index] = true
		j++
	}
	return b.String()
}

// DeriveAuthHash binds an address to the key that produced it without
// storing the key itself.
func DeriveAuthHash(address, secretKey string) string {
	return SHA256Hex(address + secretKey)
}

// IsValidAddress reports whether s is a well-formed v2 address with the
// default prefix.
func IsValidAddress(s string) bool {
	return IsValidAddressWithPrefix(s, DefaultAddressPrefix)
}

// IsValidAddressWithPrefix reports whether s is prefix followed by nine
// lower-case alphanumerics.
func IsValidAddressWithPrefix(s, prefix string) bool {
	s = NormalizeAddress(s)
	if !IsValidAddressPrefix(prefix) || !strings.HasPrefix(s, prefix) {
		return false
	}
	return addressBodyRe.MatchString(s[len(prefix):])
}

// IsValidAddressPrefix reports whether p can prefix v2 addresses: exactly one
// lower-case letter.
func IsValidAddressPrefix(p string) bool {
	return prefixRe.MatchString(p)
}

// NormalizeAddress lower-cases and trims an address for case-insensitive matching.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func hexByte(s string) byte {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		// h is always produced by SHA256Hex
		panic("domain: invalid hex digest " + s)
	}
	return byte(v)
}

func base36(v byte) byte {
	switch bucket := v / 7; {
	case bucket <= 9:
		return '0' + bucket
	case bucket <= 35:
		return 'a' + bucket - 10
	default:
		return 'e'
	}
}
