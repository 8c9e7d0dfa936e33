package workload

import (
	"fmt"
	"math/rand"

	"hwbench/config"
	db "hwbench/debug"
)

// Memory accesses interleaved with integer mixing at a fixed
// compute:memory ratio. Owns its buffer and index array until Cleanup.
type MixedWorkload struct {
	buffer     []uint64
	indices    []uint64
	workingSet int
	ratio      int
	seed       int64
}

// Allocate a buffer of bufferBytes filled with its indices, and a working
// set of workingSet random positions in it.
func NewMixedWorkload(bufferBytes int, workingSet int, ratio int, seed int64) (*MixedWorkload, error) {
	count := bufferBytes / wordSize
	if count <= 0 {
		return nil, fmt.Errorf("mixed workload %d bytes: %w", bufferBytes, ErrEmptyBuffer)
	}
	if workingSet <= 0 {
		return nil, fmt.Errorf("mixed workload working set %d: %w", workingSet, ErrWorkingSet)
	}
	w := &MixedWorkload{
		buffer:     make([]uint64, count),
		indices:    make([]uint64, workingSet),
		workingSet: workingSet,
		ratio:      ratio,
		seed:       seed,
	}
	for i := range w.buffer {
		w.buffer[i] = uint64(i)
	}
	r := rand.New(rand.NewSource(seed))
	for i := range w.indices {
		w.indices[i] = uint64(r.Int63n(int64(count)))
	}
	db.DPrintf(db.WORKLOAD, "NewMixedWorkload %d bytes ws %d ratio %d seed %d",
		bufferBytes, workingSet, ratio, seed)
	return w, nil
}

func (w *MixedWorkload) WorkingSet() int {
	return w.workingSet
}

func (w *MixedWorkload) Ratio() int {
	return w.ratio
}

func (w *MixedWorkload) Seed() int64 {
	return w.seed
}

// Snapshot of the buffer, for verification.
func (w *MixedWorkload) Buffer() []uint64 {
	return w.buffer
}

func mix(v, iter uint64, rounds int) uint64 {
	for c := 0; c < rounds; c++ {
		v = v*3 + iter
		v ^= v << 13
		v ^= v >> 7
		v ^= v << 17
	}
	return v
}

func (w *MixedWorkload) step(iter uint64, ratio int) uint64 {
	idx := w.indices[iter%uint64(w.workingSet)]
	v := mix(w.buffer[idx], iter, ratio)
	w.buffer[idx] = v
	return v
}

// Run iterations of read, mix ratio times, write back.
func (w *MixedWorkload) Run(iterations uint64) uint64 {
	var result uint64
	for i := uint64(0); i < iterations; i++ {
		result += w.step(i, w.ratio)
	}
	return result
}

// Split iterations over phases, growing the working set from
// workingSet/phases up to the full set. The working set is restored
// afterwards.
func (w *MixedWorkload) Phased(iterations uint64, phases int) uint64 {
	if phases <= 0 {
		return 0
	}
	initial := w.workingSet
	defer func() { w.workingSet = initial }()
	var result uint64
	for p := 0; p < phases; p++ {
		w.workingSet = initial * (p + 1) / phases
		if w.workingSet < 1 {
			w.workingSet = 1
		}
		result += w.Run(iterations / uint64(phases))
	}
	return result
}

// Alternate blocks of compute-heavy (ratio*factor) and memory-heavy
// (ratio/factor, at least 1) iterations. The ratio is restored afterwards.
func (w *MixedWorkload) Bursty(iterations uint64) uint64 {
	block := config.Conf.Workload.BURST_BLOCK
	if block == 0 {
		block = 1
	}
	factor := config.Conf.Workload.BURST_FACTOR
	if factor < 1 {
		factor = 1
	}
	ratio0 := w.ratio
	defer func() { w.ratio = ratio0 }()
	heavy := ratio0 * factor
	light := ratio0 / factor
	if light < 1 {
		light = 1
	}
	var result uint64
	for i := uint64(0); i < iterations; i++ {
		if (i/block)%2 == 0 {
			w.ratio = heavy
		} else {
			w.ratio = light
		}
		result += w.step(i, w.ratio)
	}
	return result
}

// Release the buffer and indices. The workload must not be run afterwards.
func (w *MixedWorkload) Cleanup() {
	w.buffer = nil
	w.indices = nil
}
