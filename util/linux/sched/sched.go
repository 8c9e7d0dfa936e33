// Package sched wraps the Linux scheduling calls used to control where and
// how a workload runs: CPU affinity, niceness, real-time policy, the current
// CPU id, and a single yield.
//
// Affinity calls act on the calling OS thread, so callers must hold
// runtime.LockOSThread for as long as the placement should stick.
package sched

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/shirou/gopsutil/cpu"
	"golang.org/x/sys/unix"
	"kernel.org/pub/linux/libs/security/libcap/cap"

	db "hwbench/debug"
)

const (
	SCHED_OTHER = 0
	SCHED_FIFO  = 1
	SCHED_RR    = 2
)

var ErrInvalidCPU = errors.New("invalid cpu")

// Number of CPU ids a unix.CPUSet can describe.
var maxCPUs = len(unix.CPUSet{}) * int(unsafe.Sizeof(unix.CPUSet{}[0])) * 8

type CPUMask struct {
	set unix.CPUSet
}

func (m *CPUMask) Test(i uint) bool {
	return m.set.IsSet(int(i))
}

func (m *CPUMask) Count() int {
	return m.set.Count()
}

func (m *CPUMask) String() string {
	s := "["
	first := true
	for i := 0; i < maxCPUs; i++ {
		if m.set.IsSet(i) {
			if !first {
				s += ","
			}
			s += fmt.Sprint(i)
			first = false
		}
	}
	return s + "]"
}

func SchedGetAffinity(pid int) (*CPUMask, error) {
	m := &CPUMask{}
	if err := unix.SchedGetaffinity(pid, &m.set); err != nil {
		return nil, err
	}
	return m, nil
}

// Number of logical cores on the machine (online or not in our mask).
func GetNCores() uint {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		db.DPrintf(db.SCHED_ERR, "cpu.Counts: %v; using NumCPU", err)
		return uint(runtime.NumCPU())
	}
	return uint(n)
}

// CPUs this process may run on, in increasing order.
func AllowedCPUs() ([]int, error) {
	m, err := SchedGetAffinity(0)
	if err != nil {
		return nil, err
	}
	cpus := make([]int, 0, m.Count())
	for i := 0; i < maxCPUs; i++ {
		if m.set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus, nil
}

// Pin the calling thread to one logical CPU. The error is returned as is;
// there is no retry.
func PinToCPU(c int) error {
	var m unix.CPUSet
	if c < 0 || c >= maxCPUs {
		return fmt.Errorf("pin %d: %w", c, ErrInvalidCPU)
	}
	m.Zero()
	m.Set(c)
	if err := unix.SchedSetaffinity(0, &m); err != nil {
		db.DPrintf(db.SCHED_ERR, "SchedSetaffinity %d: %v", c, err)
		return fmt.Errorf("pin %d: %w", c, err)
	}
	db.DPrintf(db.SCHED, "Pinned tid %d to cpu %d", unix.Gettid(), c)
	return nil
}

// Set the niceness of the whole process.
func SetNice(n int) error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, n); err != nil {
		db.DPrintf(db.SCHED_ERR, "Setpriority %d: %v", n, err)
		return err
	}
	return nil
}

// Whether the process may lower its niceness or pick a real-time policy.
func CanRaisePriority() bool {
	ok, err := cap.GetProc().GetFlag(cap.Effective, cap.SYS_NICE)
	if err != nil {
		db.DPrintf(db.SCHED_ERR, "GetFlag SYS_NICE: %v", err)
		return false
	}
	return ok
}

type schedParam struct {
	priority int32
}

// Switch the calling thread to SCHED_FIFO or SCHED_RR at prio (1-99).
// Needs CAP_SYS_NICE.
func SetRealtimePolicy(policy, prio int) error {
	if policy != SCHED_FIFO && policy != SCHED_RR {
		return fmt.Errorf("policy %d: %w", policy, unix.EINVAL)
	}
	p := schedParam{priority: int32(prio)}
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, 0, uintptr(policy), uintptr(unsafe.Pointer(&p)))
	if errno != 0 {
		db.DPrintf(db.SCHED_ERR, "sched_setscheduler %d %d: %v", policy, prio, errno)
		return errno
	}
	return nil
}

// CPU the caller is running on, or -1. For verification only; it is a
// syscall.
func GetCurrentCPU() int {
	var c uint32
	_, _, errno := unix.RawSyscall(unix.SYS_GETCPU, uintptr(unsafe.Pointer(&c)), 0, 0)
	if errno != 0 {
		return -1
	}
	return int(c)
}

// Give up the CPU once.
func Yield() error {
	_, _, errno := unix.Syscall(unix.SYS_SCHED_YIELD, 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
