// Package hwcounter counts hardware events (instructions, cycles, cache
// misses, branches) for the calling thread with perf_event_open(2).
//
// Each event has its own handle. Handles the kernel refuses stay invalid and
// read as zero, so a run without privileges still completes with zero
// counts. The refusal is logged once per process.
package hwcounter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	db "hwbench/debug"
)

var ErrUnavailable = errors.New("no hardware counters available")

var (
	warnOnce  sync.Once
	ioctlOnce sync.Once
)

// Issue a perf ioctl on fd, logging the first failure in the process.
func ioctl(fd int, req uint, e Tevent) error {
	err := unix.IoctlSetInt(fd, req, 0)
	if err != nil {
		ioctlOnce.Do(func() {
			db.DPrintf(db.HWCOUNTER_ERR, "ioctl %#x on %v: %v", req, e, err)
		})
	}
	return err
}

type Counts struct {
	Instructions  uint64
	Cycles        uint64
	L1DReadMisses uint64
	LLCMisses     uint64
	Branches      uint64
	BranchMisses  uint64
}

// Instructions per cycle; 0 without cycles.
func (c Counts) IPC() float64 {
	if c.Cycles == 0 {
		return 0
	}
	return float64(c.Instructions) / float64(c.Cycles)
}

// Fraction of branches mispredicted; 0 without branches.
func (c Counts) BranchMissRate() float64 {
	if c.Branches == 0 {
		return 0
	}
	return float64(c.BranchMisses) / float64(c.Branches)
}

var header = []string{
	"instructions",
	"cycles",
	"ipc",
	"l1_dcache_misses",
	"llc_misses",
	"branches",
	"branch_misses",
	"branch_miss_rate",
}

func Header() []string {
	return append([]string(nil), header...)
}

func (c Counts) Record() []string {
	return []string{
		strconv.FormatUint(c.Instructions, 10),
		strconv.FormatUint(c.Cycles, 10),
		strconv.FormatFloat(c.IPC(), 'f', 3, 64),
		strconv.FormatUint(c.L1DReadMisses, 10),
		strconv.FormatUint(c.LLCMisses, 10),
		strconv.FormatUint(c.Branches, 10),
		strconv.FormatUint(c.BranchMisses, 10),
		strconv.FormatFloat(c.BranchMissRate(), 'f', 6, 64),
	}
}

func (c Counts) String() string {
	return fmt.Sprintf("{instr %d cyc %d ipc %.3f l1d %d llc %d br %d brmiss %d (%.4f)}",
		c.Instructions, c.Cycles, c.IPC(), c.L1DReadMisses, c.LLCMisses,
		c.Branches, c.BranchMisses, c.BranchMissRate())
}

// A set of per-thread counters. Open locks the calling goroutine to its OS
// thread until Close, since the events follow that thread.
type Counters struct {
	fds    [NEVENT]int
	vals   [NEVENT]uint64
	closed bool
}

func Open() *Counters {
	runtime.LockOSThread()
	cs := &Counters{}
	var errs []error
	for e := Tevent(0); e < NEVENT; e++ {
		fd, err := openEvent(e)
		if err != nil {
			errs = append(errs, err)
		}
		cs.fds[e] = fd
	}
	if len(errs) > 0 {
		warnOnce.Do(func() {
			p, _ := Paranoid()
			db.DPrintf(db.ALWAYS, "hwcounter: %d of %d events unavailable (perf_event_paranoid %d): %v",
				len(errs), NEVENT, p, errors.Join(errs...))
		})
		db.DPrintf(db.HWCOUNTER_ERR, "Open: %v", errs)
	}
	db.DPrintf(db.HWCOUNTER, "Open: %d valid", cs.Valid())
	return cs
}

// Number of valid handles.
func (cs *Counters) Valid() int {
	n := 0
	for _, fd := range cs.fds {
		if fd >= 0 {
			n++
		}
	}
	return n
}

// Whether at least instructions and cycles are counted.
func (cs *Counters) Available() bool {
	return cs.fds[INSTRUCTIONS] >= 0 && cs.fds[CYCLES] >= 0
}

// Reset and enable every valid handle.
func (cs *Counters) Start() {
	for e, fd := range cs.fds {
		if fd < 0 {
			continue
		}
		if ioctl(fd, unix.PERF_EVENT_IOC_RESET, Tevent(e)) != nil {
			continue
		}
		ioctl(fd, unix.PERF_EVENT_IOC_ENABLE, Tevent(e))
	}
}

// Disable and read every valid handle. A failed or short read counts 0.
func (cs *Counters) Stop() {
	var b [8]byte
	for e, fd := range cs.fds {
		cs.vals[e] = 0
		if fd < 0 {
			continue
		}
		ioctl(fd, unix.PERF_EVENT_IOC_DISABLE, Tevent(e))
		n, err := unix.Read(fd, b[:])
		if err != nil || n != len(b) {
			continue
		}
		cs.vals[e] = binary.NativeEndian.Uint64(b[:])
	}
}

// Values read by the last Stop.
func (cs *Counters) Counts() Counts {
	return Counts{
		Instructions:  cs.vals[INSTRUCTIONS],
		Cycles:        cs.vals[CYCLES],
		L1DReadMisses: cs.vals[L1D_READ_MISSES],
		LLCMisses:     cs.vals[LLC_MISSES],
		Branches:      cs.vals[BRANCHES],
		BranchMisses:  cs.vals[BRANCH_MISSES],
	}
}

// Release every handle and the OS thread. Later calls do nothing.
func (cs *Counters) Close() error {
	if cs.closed {
		return nil
	}
	cs.closed = true
	var err error
	for e, fd := range cs.fds {
		if fd < 0 {
			continue
		}
		if err1 := unix.Close(fd); err1 != nil && err == nil {
			err = err1
		}
		cs.fds[e] = -1
	}
	runtime.UnlockOSThread()
	return err
}

// Count f's events. The counters are released however f returns. f runs
// even when nothing can be counted; the result is then zero with
// ErrUnavailable.
func Measure(f func()) (Counts, error) {
	cs := Open()
	defer cs.Close()
	cs.Start()
	f()
	cs.Stop()
	if cs.Valid() == 0 {
		return Counts{}, ErrUnavailable
	}
	return cs.Counts(), nil
}
