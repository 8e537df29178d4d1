package matching

// SimilarityRatio computes an edit-distance based similarity in [0, 1]
// between two already-normalized strings. Identical strings score 1.0,
// fully distinct strings score 0.0.
func SimilarityRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	ra := []rune(a)
	rb := []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	dist := levenshtein(ra, rb)
	return 1 - float64(dist)/float64(longest)
}

// levenshtein computes the edit distance between two rune slices using a
// single-row dynamic programming table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			insert := row[j-1] + 1
			remove := row[j] + 1
			replace := prev + cost

			best := insert
			if remove < best {
				best = remove
			}
			if replace < best {
				best = replace
			}
			prev = row[j]
			row[j] = best
		}
	}
	return row[len(b)]
}
