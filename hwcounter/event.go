package hwcounter

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"hwbench/config"
)

type Tevent int

const (
	INSTRUCTIONS Tevent = iota
	CYCLES
	L1D_READ_MISSES
	LLC_MISSES
	BRANCHES
	BRANCH_MISSES
	NEVENT
)

type eventDesc struct {
	name   string
	typ    uint32
	config uint64
}

var events = [NEVENT]eventDesc{
	INSTRUCTIONS: {"instructions", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_INSTRUCTIONS},
	CYCLES:       {"cycles", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES},
	L1D_READ_MISSES: {"l1_dcache_misses", unix.PERF_TYPE_HW_CACHE,
		unix.PERF_COUNT_HW_CACHE_L1D | unix.PERF_COUNT_HW_CACHE_OP_READ<<8 | unix.PERF_COUNT_HW_CACHE_RESULT_MISS<<16},
	LLC_MISSES:    {"llc_misses", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_MISSES},
	BRANCHES:      {"branches", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS},
	BRANCH_MISSES: {"branch_misses", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_MISSES},
}

func (e Tevent) String() string {
	if e < 0 || e >= NEVENT {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return events[e].name
}

func (e Tevent) attr() *unix.PerfEventAttr {
	attr := &unix.PerfEventAttr{
		Type:   events[e].typ,
		Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Config: events[e].config,
		Bits:   unix.PerfBitDisabled,
	}
	if config.Conf.HWCounter.EXCLUDE_KERNEL {
		attr.Bits |= unix.PerfBitExcludeKernel
	}
	if config.Conf.HWCounter.EXCLUDE_HV {
		attr.Bits |= unix.PerfBitExcludeHv
	}
	return attr
}

// Open e, disabled, counting the calling thread on any CPU.
func openEvent(e Tevent) (int, error) {
	fd, err := unix.PerfEventOpen(e.attr(), 0, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("perf_event_open %v: %w", e, err)
	}
	return fd, nil
}
