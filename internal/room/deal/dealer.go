// Package deal produces the per-round number assignments. The shuffle is
// seeded from a caller-supplied string so a round can be replayed or
// audited: the same seed always deals the same numbers.
package deal

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// Numbers builds the integer pool [min, max], shuffles it with a
// generator seeded from seed, and returns the first count values.
// count larger than the pool is an error, never a silent truncation.
func Numbers(count, min, max int, seed string) ([]int, error) {
	if count < 0 {
		return nil, fmt.Errorf("deal: count %d is negative", count)
	}
	if min > max {
		return nil, fmt.Errorf("deal: invalid range [%d, %d]", min, max)
	}
	poolSize := max - min + 1
	if count > poolSize {
		return nil, fmt.Errorf("deal: count %d exceeds pool size %d", count, poolSize)
	}

	pool := make([]int, poolSize)
	for i := range pool {
		pool[i] = min + i
	}

	rng := rand.New(rand.NewSource(seedHash(seed)))
	for i := len(pool) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}

	return pool[:count], nil
}

func seedHash(seed string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	return int64(h.Sum64())
}
