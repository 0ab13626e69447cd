package clustering

import (
	"regexp"
	"strings"

	"github.com/hbollon/go-edlib"
)

// nonWordRe matches runs outside ASCII letters, digits and CJK ideographs.
var nonWordRe = regexp.MustCompile(`[^a-z0-9\x{4e00}-\x{9fff}]+`)

// NormalizeTitle lowercases a headline and reduces everything except ASCII
// alphanumerics and CJK ideographs to single spaces.
func NormalizeTitle(title string) string {
	cleaned := strings.ToLower(strings.TrimSpace(title))
	cleaned = nonWordRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// Ratio returns the normalized Indel similarity of a and b on a 0-100 scale.
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 100
	}
	return float64(2*edlib.LCS(a, b)) / float64(total) * 100
}
