package rules

// closestMatch ranks candidates by longest-common-subsequence ratio and
// returns the best one. Candidates must be sorted; ties keep the
// lexicographically smaller candidate. A cutoff of zero always yields a
// match for a non-empty candidate list.
func closestMatch(label string, candidates []string, cutoff float64) (string, bool) {
	best := ""
	bestRatio := -1.0
	for _, candidate := range candidates {
		if ratio := lcsRatio(label, candidate); ratio > bestRatio {
			best = candidate
			bestRatio = ratio
		}
	}
	if bestRatio < 0 || bestRatio < cutoff {
		return "", false
	}
	return best, true
}

// lcsRatio returns 2*LCS(a,b) / (len(a)+len(b)) over runes. Two empty
// strings are identical.
func lcsRatio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra)+len(rb) == 0 {
		return 1.0
	}
	return 2.0 * float64(lcsLength(ra, rb)) / float64(len(ra)+len(rb))
}

// lcsLength computes the longest-common-subsequence length with a
// two-row dynamic program.
func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
