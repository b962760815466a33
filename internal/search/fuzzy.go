package search

// ratio computes a normalized similarity between two strings: twice the
// number of characters covered by matching blocks, divided by the combined
// length of both inputs. Equal strings score 1.0, fully disjoint strings
// 0.0, and two empty strings count as equal. Callers wanting
// case-insensitive scores lower-case the inputs first.
func ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matchedRunes(ra, rb)) / float64(total)
}

// matchedRunes sums the block lengths found by repeatedly taking the longest
// common block inside a window and splitting the window around it, the
// classic sequence-matcher scheme.
func matchedRunes(a, b []rune) int {
	// Index b once: rune -> ascending positions.
	positions := make(map[rune][]int, len(b))
	for j, r := range b {
		positions[r] = append(positions[r], j)
	}

	type window struct{ alo, ahi, blo, bhi int }
	stack := []window{{0, len(a), 0, len(b)}}
	matched := 0
	for len(stack) > 0 {
		w := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		i, j, k := longestBlock(a, positions, w.alo, w.ahi, w.blo, w.bhi)
		if k == 0 {
			continue
		}
		matched += k
		if w.alo < i && w.blo < j {
			stack = append(stack, window{w.alo, i, w.blo, j})
		}
		if i+k < w.ahi && j+k < w.bhi {
			stack = append(stack, window{i + k, w.ahi, j + k, w.bhi})
		}
	}
	return matched
}

// longestBlock finds the longest run a[i:i+k] == b[j:j+k] inside the window,
// preferring the earliest i and then the earliest j on ties. The dynamic
// program carries, per position j in b, the length of the run ending there.
func longestBlock(a []rune, positions map[rune][]int, alo, ahi, blo, bhi int) (besti, bestj, bestk int) {
	besti, bestj = alo, blo
	runEnding := make(map[int]int)
	for i := alo; i < ahi; i++ {
		next := make(map[int]int)
		for _, j := range positions[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := runEnding[j-1] + 1
			next[j] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		runEnding = next
	}
	return besti, bestj, bestk
}
