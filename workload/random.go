package workload

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	ErrEmptyBuffer = errors.New("empty buffer")
	ErrWorkingSet  = errors.New("invalid working set")
)

// Fill idx with 0..n-1 and Fisher-Yates shuffle it.
func shuffle(idx []uint64, r *rand.Rand) {
	for i := range idx {
		idx[i] = uint64(i)
	}
	for i := len(idx) - 1; i > 0; i-- {
		j := r.Int63n(int64(i + 1))
		idx[i], idx[j] = idx[j], idx[i]
	}
}

// Link the elements of buf into one cycle in a random order: buf[k] holds
// the index of the element visited after k. Every element is on the cycle.
func BuildChain(buf []uint64, seed int64) error {
	n := len(buf)
	if n == 0 {
		return fmt.Errorf("build chain: %w", ErrEmptyBuffer)
	}
	idx := make([]uint64, n)
	shuffle(idx, rand.New(rand.NewSource(seed)))
	for i := 0; i < n-1; i++ {
		buf[idx[i]] = idx[i+1]
	}
	buf[idx[n-1]] = idx[0]
	return nil
}

// Follow a chain built by BuildChain for iterations dependent loads,
// starting at element 0. Returns the last index reached.
func ChaseChain(buf []uint64, iterations uint64) uint64 {
	if len(buf) == 0 {
		return 0
	}
	var index uint64
	for i := uint64(0); i < iterations; i++ {
		index = buf[index]
	}
	return index
}

// Build a chain over buf and chase it.
func RandomChase(buf []uint64, iterations uint64, seed int64) (uint64, error) {
	if err := BuildChain(buf, seed); err != nil {
		return 0, err
	}
	return ChaseChain(buf, iterations), nil
}

// Number of steps from element 0 back to itself, or -1 if the chain does
// not return within len(buf) steps or leaves the buffer.
func CycleLength(buf []uint64) int {
	n := uint64(len(buf))
	var index uint64
	for steps := 1; steps <= len(buf); steps++ {
		index = buf[index]
		if index >= n {
			return -1
		}
		if index == 0 {
			return steps
		}
	}
	return -1
}

// Fill indices with a shuffled permutation of 0..len-1.
func GenerateIndices(indices []uint64, seed int64) {
	shuffle(indices, rand.New(rand.NewSource(seed)))
}

// Sum buf at each precomputed index. There is no dependency between loads,
// so this measures random-access bandwidth rather than latency.
func RandomRead(buf []uint64, indices []uint64) uint64 {
	n := uint64(len(buf))
	if n == 0 {
		return 0
	}
	var sum uint64
	for _, idx := range indices {
		sum += buf[idx%n]
	}
	return sum
}
