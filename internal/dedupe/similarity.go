package dedupe

import (
	"github.com/hbollon/go-edlib"
)

// Ratio returns the normalized indel similarity of a and b in [0,1]:
// 2*LCS / (len(a)+len(b)), lengths in runes. Two empty strings are identical.
func Ratio(a, b string) float64 {
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 1
	}
	return 2 * float64(edlib.LCS(a, b)) / float64(total)
}

// PartialRatio returns the best Ratio between the shorter string and any
// equally long window of the longer one, including windows that run past
// either end. A title contained in another scores 1.
func PartialRatio(a, b string) float64 {
	s1, s2 := []rune(a), []rune(b)
	if len(s1) > len(s2) {
		s1, s2 = s2, s1
	}
	m, n := len(s1), len(s2)
	if m == 0 {
		if n == 0 {
			return 1
		}
		return 0
	}

	short := string(s1)
	best := 0.0
	for start := -(m - 1); start < n; start++ {
		lo, hi := max(start, 0), min(start+m, n)
		if r := Ratio(short, string(s2[lo:hi])); r > best {
			best = r
			if best == 1 {
				break
			}
		}
	}
	return best
}
