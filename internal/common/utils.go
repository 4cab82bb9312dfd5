package common

import "strings"

// HasAnyPrefix returns true if s starts with any of the prefixes, ignoring case.
func HasAnyPrefix(s string, prefixes ...string) bool {
	lower := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// IsMissing reports whether a CSV cell holds no value. Empty cells and the
// spellings pandas writes for NaN count as missing.
func IsMissing(cell string) bool {
	switch strings.TrimSpace(cell) {
	case "", "NaN", "nan", "NA", "<nil>":
		return true
	}
	return false
}
