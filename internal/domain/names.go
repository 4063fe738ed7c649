package domain

import (
	"regexp"
	"strings"
)

// ─── Name Validation ────────────────────────────────────────────────────────

const (
	// NameSuffix is the optional TLD clients append to names.
	NameSuffix = ".kro"

	maxNameLen    = 64
	maxARecordLen = 255
)

var (
	nameRe     = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)
	metaNameRe = regexp.MustCompile(`^(?:([a-z0-9_-]{1,32})@)?([a-z0-9_-]{1,64})(?:\.kro)?$`)
	aRecordRe  = regexp.MustCompile(`^[^\s.?#].[^\s]*$`)
)

// SanitizeName trims and lower-cases a name and strips the .kro suffix.
func SanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, NameSuffix)
}

// IsValidName reports whether a sanitized name is registrable.
func IsValidName(name string) bool {
	return len(name) <= maxNameLen && nameRe.MatchString(name)
}

// IsValidARecord reports whether s may be stored as a name's metadata.
func IsValidARecord(s string) bool {
	return len(s) <= maxARecordLen && aRecordRe.MatchString(s)
}

// MetaName is a parsed "label@name" recipient.
type MetaName struct {
	Label string // optional
	Name  string
}

// ParseMetaName parses a recipient of the form (label@)?name(.kro)? against
// the default address prefix.
func ParseMetaName(s string) (MetaName, bool) {
	return ParseMetaNameWithPrefix(s, DefaultAddressPrefix)
}

// ParseMetaNameWithPrefix is ParseMetaName for ledgers whose addresses use
// prefix. Strings that are valid addresses are never meta-names, unless they
// carry a label or the .kro suffix.
func ParseMetaNameWithPrefix(s, prefix string) (MetaName, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	m := metaNameRe.FindStringSubmatch(s)
	if m == nil {
		return MetaName{}, false
	}
	if m[1] == "" && !strings.HasSuffix(s, NameSuffix) && (IsValidAddressWithPrefix(s, prefix) || IsSystemAddress(s)) {
		return MetaName{}, false
	}
	return MetaName{Label: m[1], Name: m[2]}, true
}
