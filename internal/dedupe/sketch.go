package dedupe

import (
	"hash/fnv"
	"math"
)

// TitleSketch hashes the character trigrams of a normalized title into a
// fixed-size L2-normalized vector, so titles sharing most trigrams have a
// high cosine similarity.
func TitleSketch(titleNorm string, dims int) []float32 {
	if dims <= 0 {
		dims = 256
	}
	vec := make([]float32, dims)
	runes := []rune(" " + titleNorm + " ")
	if len(runes) < 3 {
		return vec
	}
	for i := 0; i+3 <= len(runes); i++ {
		h := fnv.New32a()
		h.Write([]byte(string(runes[i : i+3])))
		vec[h.Sum32()%uint32(dims)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
