package numa

import (
	"unsafe"

	"golang.org/x/sys/unix"

	db "hwbench/debug"
)

// Memory policy modes and mbind flags from <linux/mempolicy.h>.
const (
	MPOL_DEFAULT    = 0
	MPOL_PREFERRED  = 1
	MPOL_BIND       = 2
	MPOL_INTERLEAVE = 3

	MPOL_MF_STRICT   = 1 << 0
	MPOL_MF_MOVE     = 1 << 1
	MPOL_MF_MOVE_ALL = 1 << 2
)

const bitsPerWord = 64

// Whether the kernel accepts memory policy calls at all. Computed once per
// topology.
func (t *Topology) MbindSupported() bool {
	t.mbindOnce.Do(func() {
		_, _, errno := unix.Syscall6(unix.SYS_GET_MEMPOLICY, 0, 0, 0, 0, 0, 0)
		if errno != 0 {
			db.DPrintf(db.NUMA_ERR, "get_mempolicy: %v", errno)
		}
		t.mbindOK = errno == 0
	})
	return t.mbindOK
}

// Node mask with room for count nodes.
func nodeMask(count int, nodes ...int) []uint64 {
	mask := make([]uint64, (count+bitsPerWord)/bitsPerWord)
	for _, n := range nodes {
		mask[n/bitsPerWord] |= 1 << uint(n%bitsPerWord)
	}
	return mask
}

func mbind(b []byte, mode int, mask []uint64, maxnode int, flags int) error {
	_, _, errno := unix.Syscall6(unix.SYS_MBIND,
		uintptr(unsafe.Pointer(&b[0])),
		uintptr(len(b)),
		uintptr(mode),
		uintptr(unsafe.Pointer(&mask[0])),
		uintptr(maxnode),
		uintptr(flags))
	if errno != 0 {
		return errno
	}
	return nil
}
