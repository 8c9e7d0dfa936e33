// Package numa discovers the NUMA layout from sysfs and places memory on
// nodes with mbind(2). It talks to the kernel directly; there is no libnuma.
//
// A Topology is an explicit context object: the node count and the mbind
// capability are computed once per instance, so several topologies (e.g., a
// fake sysfs tree in tests and the real one) can coexist.
package numa

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"hwbench/config"
	db "hwbench/debug"
)

var (
	ErrInvalidNode = errors.New("invalid numa node")
	ErrSize        = errors.New("invalid allocation size")
)

type Topology struct {
	root     string
	maxNodes int

	countOnce sync.Once
	count     int

	mbindOnce sync.Once
	mbindOK   bool
}

// Make a topology rooted at root, which holds node<N> directories. An empty
// root means the configured sysfs root.
func NewTopology(root string) *Topology {
	if root == "" {
		root = config.Conf.Numa.SYSFS_ROOT
	}
	mx := config.Conf.Numa.MAX_NODES
	if mx <= 0 {
		mx = 256
	}
	return &Topology{root: root, maxNodes: mx}
}

func (t *Topology) Root() string {
	return t.root
}

func (t *Topology) nodePath(node int) string {
	return filepath.Join(t.root, "node"+strconv.Itoa(node))
}

// Number of nodes, or -1 if none is found. Probing stops at the first
// missing node id, so a sparse numbering undercounts.
func (t *Topology) NodeCount() int {
	t.countOnce.Do(func() {
		n := 0
		for ; n < t.maxNodes; n++ {
			if _, err := os.Stat(t.nodePath(n)); err != nil {
				break
			}
		}
		if n == 0 {
			db.DPrintf(db.NUMA, "No nodes under %v", t.root)
			t.count = -1
			return
		}
		db.DPrintf(db.NUMA, "%d nodes under %v", n, t.root)
		t.count = n
	})
	return t.count
}

func (t *Topology) IsAvailable() bool {
	return t.NodeCount() >= 2
}

// CPU mask of node, limited to CPUs below 64. Returns 0 if the cpulist
// cannot be read.
func (t *Topology) NodeToCPUs(node int) uint64 {
	b, err := os.ReadFile(filepath.Join(t.nodePath(node), "cpulist"))
	if err != nil {
		db.DPrintf(db.NUMA_ERR, "NodeToCPUs %d: %v", node, err)
		return 0
	}
	return ParseCPUList(string(b))
}

// Parse a sysfs cpulist into a 64-bit mask. Only the first range ("a-b") or
// single id ("a") is honored; "0-3,8-11" yields CPUs 0-3. Malformed input
// yields 0.
func ParseCPUList(s string) uint64 {
	s = strings.TrimSpace(s)
	first, _, _ := strings.Cut(s, ",")
	lo, hi, isRange := strings.Cut(first, "-")
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || start < 0 {
		return 0
	}
	end := start
	if isRange {
		end, err = strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			// A dangling "a-" still names a.
			end = start
		}
	}
	var mask uint64
	for i := start; i <= end && i < 64; i++ {
		mask |= 1 << uint(i)
	}
	return mask
}

func maskString(mask uint64) string {
	var sb strings.Builder
	first := true
	for c := 0; c < 64; c++ {
		if mask&(1<<uint(c)) != 0 {
			if !first {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(c))
			first = false
		}
	}
	return sb.String()
}

func (t *Topology) String() string {
	var sb strings.Builder
	sb.WriteString("NUMA Configuration:\n")
	n := t.NodeCount()
	if n < 0 {
		sb.WriteString("  NUMA not available or not detected\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "  Nodes: %d\n", n)
	for node := 0; node < n; node++ {
		fmt.Fprintf(&sb, "  Node %d: CPUs %s\n", node, maskString(t.NodeToCPUs(node)))
	}
	return sb.String()
}

// First CPU of node, or 0 if the node lists none.
func (t *Topology) FirstCPU(node int) int {
	m := t.NodeToCPUs(node)
	for c := 0; c < 64; c++ {
		if m&(1<<uint(c)) != 0 {
			return c
		}
	}
	return 0
}
