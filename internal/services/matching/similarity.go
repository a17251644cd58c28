package matching

import (
	"math"
	"strings"
)

// descriptionSimilarity scores 0-100 how well the target reference's tokens
// appear in the bank description, token by token with edit distance.
func descriptionSimilarity(bankDesc, reference string) float64 {
	bTokens := strings.Fields(normalizeText(bankDesc))
	rTokens := strings.Fields(normalizeText(reference))

	if len(rTokens) == 0 || len(bTokens) == 0 {
		return 0
	}

	total := 0.0
	for _, refTok := range rTokens {
		best := 0.0
		for _, bankTok := range bTokens {
			dist := levenshtein(refTok, bankTok)
			maxLen := math.Max(float64(len(refTok)), float64(len(bankTok)))
			sim := 1 - float64(dist)/maxLen
			if sim > best {
				best = sim
			}
		}
		total += best
	}
	return math.Round(total/float64(len(rTokens))*10000) / 100
}

func normalizeText(s string) string {
	s = strings.ToUpper(s)
	s = strings.NewReplacer(".", "", ",", "", "-", " ", "/", " ", "_", " ").Replace(s)
	return strings.TrimSpace(s)
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
