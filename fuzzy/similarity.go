package fuzzy

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Queries shorter than this are not matched as substrings; a single letter
// would otherwise be a perfect partial match for almost every name.
const minPartialLength = 3

// Normalize folds case, strips diacritics and collapses whitespace so that
// "  Jörg   MÜLLER" and "jorg muller" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// Ratio is the edit-distance similarity of a and b on a 0-100 scale.
func Ratio(a, b string) int {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return int(float64(longest-distance)*100/float64(longest) + 0.5)
}

// PartialRatio scores the shorter string against every equally long window
// of the longer one and keeps the best result. Position of the match inside
// the longer string does not matter.
func PartialRatio(a, b string) int {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) < minPartialLength {
		return Ratio(a, b)
	}

	best := 0
	for start := 0; start+len(short) <= len(long); start++ {
		score := Ratio(string(short), string(long[start:start+len(short)]))
		if score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

// TokenSortRatio compares a and b after sorting their whitespace separated
// tokens, so "doe john" and "john doe" are identical.
func TokenSortRatio(a, b string) int {
	return Ratio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Similarity combines the substring and the token-order metric. Both inputs
// are normalized first.
func Similarity(query, target string) int {
	q, t := Normalize(query), Normalize(target)
	if q == "" || t == "" {
		return 0
	}
	partial := PartialRatio(q, t)
	if sorted := TokenSortRatio(q, t); sorted > partial {
		return sorted
	}
	return partial
}
