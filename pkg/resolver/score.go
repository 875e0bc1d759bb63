// File: pkg/resolver/score.go
package resolver

import (
	"strings"
)

// Score rates how well a repair query matches one candidate string on a
// 0..100 scale. It is a pure function so the acceptance threshold can be
// tuned and the scorer swapped without touching the resolver's control
// flow. The returned score is the best of three views of similarity:
// containment, token overlap, and edit distance with transpositions.
func Score(query, candidate string) int {
	query = normalizeForScore(query)
	candidate = normalizeForScore(candidate)
	if query == "" || candidate == "" {
		return 0
	}
	if query == candidate {
		return 100
	}

	best := 0
	if s := containmentScore(query, candidate); s > best {
		best = s
	}
	if s := tokenDiceScore(query, candidate); s > best {
		best = s
	}
	if s := editScore(query, candidate); s > best {
		best = s
	}
	return best
}

func normalizeForScore(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// containmentScore rewards one string appearing whole inside the other,
// scaled by how much of the longer string it covers.
func containmentScore(a, b string) int {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if !strings.Contains(long, short) {
		return 0
	}
	return 60 + 40*len(short)/len(long)
}

// tokenDiceScore is the Sørensen–Dice coefficient over whitespace tokens.
func tokenDiceScore(a, b string) int {
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}
	common := 0
	seen := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		if setA[t] && !seen[t] {
			common++
			seen[t] = true
		}
	}
	return 200 * common / (len(setA) + len(uniq(tokensB)))
}

func uniq(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// editScore converts optimal-string-alignment distance into a similarity
// percentage. Adjacent transpositions count as one edit, so common typos
// like 'byu' for 'buy' stay close.
func editScore(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}
	dist := osaDistance(ra, rb)
	return 100 * (maxLen - dist) / maxLen
}

// osaDistance is Damerau–Levenshtein restricted to adjacent transpositions.
func osaDistance(a, b []rune) int {
	la, lb := len(a), len(b)
	prev2 := make([]int, lb+1)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				if t := prev2[j-2] + 1; t < curr[j] {
					curr[j] = t
				}
			}
		}
		prev2, prev, curr = prev, curr, prev2
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
