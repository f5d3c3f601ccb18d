package flexure

import (
	"math/rand"
	"sort"
)

// defaultRNGSeed is the fixed seed used when callers pass seed == 0.
const defaultRNGSeed int64 = 1

// rngFromSeed returns a deterministic *rand.Rand.
// Policy: seed == 0 ⇒ defaultRNGSeed; otherwise the seed verbatim.
//
// math/rand.Rand is not goroutine-safe: subset selection happens once,
// before any worker starts.
func rngFromSeed(seed int64) *rand.Rand {
	s := seed
	if s == 0 {
		s = defaultRNGSeed
	}

	return rand.New(rand.NewSource(s))
}

// pickSubset returns k distinct positions of 0..n-1 drawn with rng, in
// ascending order. k <= 0 or k >= n selects everything.
//
// Complexity: O(n) time and space.
func pickSubset(n, k int, rng *rand.Rand) []int {
	if k <= 0 || k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}

		return out
	}
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	// Partial Fisher–Yates: only the first k slots are needed.
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		p[i], p[j] = p[j], p[i]
	}
	out := p[:k:k]
	sort.Ints(out)

	return out
}
