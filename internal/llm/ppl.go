package llm

import (
	"math"
	"sort"
)

// Perplexity reduces one log-probability sequence to a single score,
// exp(-mean(logProbs)). Lower means a more probable continuation. The mean
// is order-insensitive by definition. An empty sequence scores +Inf so an
// unscoreable target always ranks last.
func Perplexity(logProbs []float64) float64 {
	if len(logProbs) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for _, lp := range logProbs {
		sum += lp
	}
	return math.Exp(-sum / float64(len(logProbs)))
}

// rankByPerplexity returns indices into ppls ordered best (lowest) first.
// The sort is stable so ties keep their input order.
func rankByPerplexity(ppls []float64) []int {
	idx := make([]int, len(ppls))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return ppls[idx[a]] < ppls[idx[b]] })
	return idx
}
