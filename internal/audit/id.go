package audit

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"
)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// SuffixLength is the length of the random part of run IDs and report
// folder names.
const SuffixLength = 5

// NewRunID builds a sortable run identifier: the UTC timestamp in ISO-8601
// form with ':' and '.' replaced by '-', then a dash and a random
// alphanumeric suffix. Lexicographic order on IDs follows creation time.
func NewRunID(now time.Time) string {
	stamp := now.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return stamp + "-" + RandomSuffix(SuffixLength)
}

// RandomSuffix returns n random lowercase-alphanumeric characters.
func RandomSuffix(n int) string {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(suffixAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform entropy source is
			// broken; fall back to a stable character rather than panic.
			b.WriteByte('0')
			continue
		}
		b.WriteByte(suffixAlphabet[idx.Int64()])
	}
	return b.String()
}

// PathSlug converts a URL path into a filesystem-safe folder prefix by
// replacing every non-alphanumeric byte with '_'.
func PathSlug(urlPath string) string {
	var b strings.Builder
	b.Grow(len(urlPath))
	for i := 0; i < len(urlPath); i++ {
		c := urlPath[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
