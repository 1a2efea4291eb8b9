// Package fingerprint computes the deduplication key for a listing from its
// normalized attributes. The function is pure and safe for concurrent use;
// identical normalized inputs always produce the identical digest across
// processes and restarts.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// delimiter joins the normalized fields. Normalization only emits [a-z0-9]
// and '.', '-' (decimal strings), so the delimiter cannot appear inside a
// field and field boundaries cannot collide.
const delimiter = "|"

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Compute returns the hex-encoded SHA-256 content hash over the normalized
// (title, price, city, surface) tuple. Surface is optional; nil contributes
// an empty field. This is a dedup key, not a credential.
func Compute(title string, price decimal.Decimal, city string, surface *decimal.Decimal) string {
	surfaceStr := ""
	if surface != nil {
		surfaceStr = surface.Floor().String()
	}
	key := strings.Join([]string{
		normalizeTitle(title),
		price.String(),
		normalizeCity(city),
		surfaceStr,
	}, delimiter)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// normalizeTitle lowercases, folds diacritics ("rénover" and "renover" must
// match), and strips everything outside [a-z0-9].
func normalizeTitle(s string) string {
	return stripExcept(fold(s), true)
}

// normalizeCity keeps letters only: postal digits or punctuation in a city
// field must not split otherwise-equal listings.
func normalizeCity(s string) string {
	return stripExcept(fold(s), false)
}

func fold(s string) string {
	folded, _, err := transform.String(foldDiacritics, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}

func stripExcept(s string, keepDigits bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
			continue
		}
		if keepDigits && r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
