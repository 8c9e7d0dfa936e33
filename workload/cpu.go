// Package workload holds synthetic generators that each stress one
// subsystem: the integer ALU, streaming and random memory access, lock
// primitives, and a mixed compute/memory loop.
//
// Generators never allocate, log, or make system calls inside their loops.
// Setup (building a chain, allocating a mixed workload) happens in separate
// calls that may fail; the loops themselves cannot.
package workload

// Integer add/xor/multiply on one accumulator. Deterministic and pure; the
// result is returned so the loop is not eliminated.
func CPUSpin(iterations uint64) uint64 {
	var r uint64
	for i := uint64(0); i < iterations; i++ {
		r += i
		r ^= i << 1
		r *= 3
	}
	return r
}

// CPUSpin repeated phases times on the same accumulator.
func CPUSpinLong(iterations uint64, phases uint32) uint64 {
	var r uint64
	for p := uint32(0); p < phases; p++ {
		for i := uint64(0); i < iterations; i++ {
			r += i
			r ^= i << 1
			r *= 3
		}
	}
	return r
}
