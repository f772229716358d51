package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// NormalizeCode canonicalises user-entered codes (coupon codes, slugs):
// NFKC normalisation, case folding, and whitespace removal, so full-width or
// mixed-case entries of the same code compare equal.
func NormalizeCode(value string) string {
	value = norm.NFKC.String(strings.TrimSpace(value))
	value = foldCaser.String(value)
	return strings.Join(strings.Fields(value), "")
}

// CanonicalText normalises free-form text for deterministic hashing: NFKC
// normalisation, case folding, and interior whitespace collapsed to single
// spaces. Cosmetic differences between retried requests must not change the
// resulting fingerprint.
func CanonicalText(value string) string {
	value = norm.NFKC.String(strings.TrimSpace(value))
	value = foldCaser.String(value)
	return strings.Join(strings.Fields(value), " ")
}
