package memory

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Similarity computes a normalized edit-distance similarity between two
// strings: 1.0 for identical input, 0.0 when either is empty, otherwise
// 1 - levenshtein(a, b) / max(len(a), len(b)) over the lowercased, trimmed
// forms, clamped to [0, 1].
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	na := normalize(a)
	nb := normalize(b)

	distance := levenshtein(na, nb)
	maxLen := max(utf8.RuneCountInString(na), utf8.RuneCountInString(nb))
	if maxLen == 0 {
		return 0.0
	}

	similarity := 1.0 - float64(distance)/float64(maxLen)
	return clamp01(similarity)
}

// KeywordSimilarity computes the Jaccard overlap between the token sets of
// two strings. Tokens are runs of latin letters plus each non-latin character
// on its own, which approximates per-character tokenization for scripts
// without word delimiters.
func KeywordSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	tokensA := extractTokens(a)
	tokensB := extractTokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	intersection := 0
	union := len(tokensB)
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			intersection++
		} else {
			union++
		}
	}

	return float64(intersection) / float64(union)
}

// HybridSimilarity blends the edit-distance and keyword measures (60/40).
// Callers wanting robustness to both character-level and vocabulary-level
// drift use this; duplicate detection and search use Similarity alone.
func HybridSimilarity(a, b string) float64 {
	return 0.6*Similarity(a, b) + 0.4*KeywordSimilarity(a, b)
}

// meetsThreshold reports whether Similarity(a, b) >= threshold without
// always paying for the full edit-distance computation: the length gap alone
// bounds the achievable similarity, so grossly mismatched strings are
// rejected before the quadratic scan.
func meetsThreshold(a, b string, threshold float64) bool {
	if a == b {
		return threshold <= 1.0
	}
	if a == "" || b == "" {
		return threshold <= 0.0
	}

	na := normalize(a)
	nb := normalize(b)
	lenA := utf8.RuneCountInString(na)
	lenB := utf8.RuneCountInString(nb)
	maxLen := max(lenA, lenB)
	if maxLen == 0 {
		return threshold <= 0.0
	}

	lengthGap := lenA - lenB
	if lengthGap < 0 {
		lengthGap = -lengthGap
	}
	if upper := 1.0 - float64(lengthGap)/float64(maxLen); upper < threshold {
		return false
	}

	similarity := clamp01(1.0 - float64(levenshtein(na, nb))/float64(maxLen))
	return similarity >= threshold
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// levenshtein computes the character-level edit distance with unit-cost
// insert, delete, and substitute, using a two-row matrix.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// extractTokens lowercases the input and returns the set of latin-letter
// runs plus every other non-space character as a single-rune token.
func extractTokens(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	var word strings.Builder

	flush := func() {
		if word.Len() > 0 {
			tokens[word.String()] = struct{}{}
			word.Reset()
		}
	}

	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z':
			word.WriteRune(r)
		case unicode.IsSpace(r) || isTextPunct(r):
			flush()
		default:
			flush()
			tokens[string(r)] = struct{}{}
		}
	}
	flush()

	return tokens
}

// isTextPunct matches the Japanese sentence marks stripped before
// tokenization. Latin punctuation stays and tokenizes as single characters.
func isTextPunct(r rune) bool {
	switch r {
	case '、', '。', '「', '」', '！', '？':
		return true
	}
	return false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
