package numa

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	db "hwbench/debug"
)

type Tplacement int

const (
	FALLBACK    Tplacement = iota // mmap'ed, default policy
	BOUND                         // mmap'ed, bound to one node
	INTERLEAVED                   // mmap'ed, interleaved over all nodes
)

func (p Tplacement) String() string {
	switch p {
	case FALLBACK:
		return "fallback"
	case BOUND:
		return "bound"
	case INTERLEAVED:
		return "interleaved"
	default:
		return fmt.Sprintf("placement(%d)", int(p))
	}
}

// A placed buffer. Every placement is an anonymous mapping, so Free returns
// the pages to the kernel at once and never consults the current topology.
type Allocation struct {
	Buf       []byte
	Placement Tplacement
	Node      int
	// Whether the kernel accepted the memory policy.
	Honored bool

	mapped []byte
}

func (a *Allocation) String() string {
	return fmt.Sprintf("{%v node %d %v honored %v}", a.Placement, a.Node, humanize.IBytes(uint64(len(a.Buf))), a.Honored)
}

// Release the buffer. Freeing twice is a no-op.
func (a *Allocation) Free() error {
	if a == nil {
		return nil
	}
	a.Buf = nil
	if a.mapped == nil {
		return nil
	}
	m := a.mapped
	a.mapped = nil
	if err := unix.Munmap(m); err != nil {
		return fmt.Errorf("munmap %v: %w", a.Placement, err)
	}
	return nil
}

func (t *Topology) mmap(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap %v: %w", humanize.IBytes(uint64(size)), err)
	}
	return b, nil
}

// Allocate size bytes bound to node. With fewer than two nodes the memory is
// mapped without a policy. If the kernel rejects the binding, the memory is returned
// anyway with Honored false.
func (t *Topology) AllocOnNode(size int, node int) (*Allocation, error) {
	if size <= 0 {
		return nil, fmt.Errorf("alloc %d: %w", size, ErrSize)
	}
	n := t.NodeCount()
	if node < 0 || node >= max(n, 1) {
		return nil, fmt.Errorf("alloc on node %d of %d: %w", node, n, ErrInvalidNode)
	}
	b, err := t.mmap(size)
	if err != nil {
		return nil, err
	}
	if n < 2 {
		return &Allocation{Buf: b, mapped: b, Placement: FALLBACK, Node: node}, nil
	}
	a := &Allocation{Buf: b, mapped: b, Placement: BOUND, Node: node}
	if !t.MbindSupported() {
		db.DPrintf(db.ALWAYS, "Warning: mbind unsupported; node %d not bound", node)
		return a, nil
	}
	if err := mbind(b, MPOL_BIND, nodeMask(n, node), n+1, MPOL_MF_STRICT|MPOL_MF_MOVE); err != nil {
		db.DPrintf(db.ALWAYS, "Warning: mbind() failed for node %d: %v", node, err)
		return a, nil
	}
	a.Honored = true
	db.DPrintf(db.NUMA, "AllocOnNode %v", a)
	return a, nil
}

// Allocate size bytes with pages spread round-robin over all nodes.
func (t *Topology) AllocInterleaved(size int) (*Allocation, error) {
	if size <= 0 {
		return nil, fmt.Errorf("alloc %d: %w", size, ErrSize)
	}
	n := t.NodeCount()
	b, err := t.mmap(size)
	if err != nil {
		return nil, err
	}
	if n < 2 {
		return &Allocation{Buf: b, mapped: b, Placement: FALLBACK, Node: -1}, nil
	}
	a := &Allocation{Buf: b, mapped: b, Placement: INTERLEAVED, Node: -1}
	if !t.MbindSupported() {
		db.DPrintf(db.ALWAYS, "Warning: mbind unsupported; interleave not applied")
		return a, nil
	}
	nodes := make([]int, n)
	for i := range nodes {
		nodes[i] = i
	}
	if err := mbind(b, MPOL_INTERLEAVE, nodeMask(n, nodes...), n+1, MPOL_MF_MOVE); err != nil {
		db.DPrintf(db.ALWAYS, "Warning: mbind() interleave failed: %v", err)
		return a, nil
	}
	a.Honored = true
	db.DPrintf(db.NUMA, "AllocInterleaved %v", a)
	return a, nil
}
