package textmatch

import (
	"strings"
	"unicode"
)

// Match is the outcome of locating a quote inside a larger text.
// Span holds the actual text found, Ratio its similarity to the quote.
type Match struct {
	Span  string
	Ratio float64
}

// Ratio computes a similarity in [0,1] between two strings using the
/// total length of their greedy longest-common-substring matching blocks:
// 2*M/(len(a)+len(b)). Whitespace runs are collapsed and case is folded
// before comparison.
func Ratio(a, b string) float64 {
	na := normalize(a)
	nb := normalize(b)
	if na == "" && nb == "" {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}

	ra := []rune(na)
	rb := []rune(nb)
	m := matchingTotal(ra, rb)
	return 2.0 * float64(m) / float64(len(ra)+len(rb))
}

// BestSpan scans text for the contiguous word span most similar to quote.
// Candidate spans are word-bounded and within 60%..160% of the quote
// length, so a repaired quote is always verbatim text from the source.
func BestSpan(quote, text string) Match {
	nq := normalize(quote)
	if nq == "" || strings.TrimSpace(text) == "" {
		return Match{}
	}

	qlen := len([]rune(nq))
	minLen := int(float64(qlen) * 0.6)
	maxLen := int(float64(qlen)*1.6) + 1

	words := wordOffsets(text)
	best := Match{}

	for i := range words {
		for j := i; j < len(words); j++ {
			span := text[words[i].start:words[j].end]
			ns := normalize(span)
			slen := len([]rune(ns))
			if slen > maxLen {
				break
			}
			if slen < minLen {
				continue
			}

			// A span can never beat the current best when even a
			// perfect overlap would score below it.
			if bound := 2.0 * float64(min(qlen, slen)) / float64(qlen+slen); bound <= best.Ratio {
				continue
			}

			if r := Ratio(nq, ns); r > best.Ratio {
				best = Match{Span: span, Ratio: r}
			}
		}
	}

	return best
}

// matchingTotal sums the lengths of matching blocks found by recursively
// taking the longest common substring and descending into the flanks.
func matchingTotal(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}

	total := size
	total += matchingTotal(a[:ai], b[:bi])
	total += matchingTotal(a[ai+size:], b[bi+size:])
	return total
}

func longestCommonSubstring(a, b []rune) (ai, bi, size int) {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > size {
					size = curr[j]
					ai = i - size
					bi = j - size
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}

	return ai, bi, size
}

type wordPos struct {
	start int
	end   int
}

func wordOffsets(text string) []wordPos {
	var words []wordPos
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, wordPos{start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, wordPos{start: start, end: len(text)})
	}
	return words
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
