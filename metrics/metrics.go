// Package metrics brackets a workload with wall-clock and kernel-counter
// snapshots: context switches, page faults, and the CPU the caller ran on.
//
// The counters are read only at the two bracket points. Init takes its
// timestamp after reading them and Finish takes its timestamp before, so the
// cost of reading procfs stays out of RuntimeNs.
package metrics

import (
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"

	db "hwbench/debug"
	"hwbench/util/linux/sched"
)

// One measurement. Init fills it with a baseline and Finish overwrites it
// with deltas; after that it is only read.
type Tmetrics struct {
	TimestampNs            uint64
	RuntimeNs              uint64
	VoluntaryCtxSwitches   uint64
	InvoluntaryCtxSwitches uint64
	MinorFaults            uint64
	MajorFaults            uint64
	StartCPU               int
	EndCPU                 int
}

var header = []string{
	"timestamp_ns",
	"runtime_ns",
	"voluntary_ctxt_switches",
	"nonvoluntary_ctxt_switches",
	"minor_page_faults",
	"major_page_faults",
	"start_cpu",
	"end_cpu",
}

// Column names, in Record order.
func Header() []string {
	return append([]string(nil), header...)
}

func (m *Tmetrics) Record() []string {
	return []string{
		strconv.FormatUint(m.TimestampNs, 10),
		strconv.FormatUint(m.RuntimeNs, 10),
		strconv.FormatUint(m.VoluntaryCtxSwitches, 10),
		strconv.FormatUint(m.InvoluntaryCtxSwitches, 10),
		strconv.FormatUint(m.MinorFaults, 10),
		strconv.FormatUint(m.MajorFaults, 10),
		strconv.Itoa(m.StartCPU),
		strconv.Itoa(m.EndCPU),
	}
}

func (m *Tmetrics) String() string {
	return fmt.Sprintf("{rt %dns ctx %d/%d flt %d/%d cpu %d->%d}",
		m.RuntimeNs, m.VoluntaryCtxSwitches, m.InvoluntaryCtxSwitches,
		m.MinorFaults, m.MajorFaults, m.StartCPU, m.EndCPU)
}

// Collector pairs a Source with the Init/Finish bracket. A collector is
// not safe for concurrent use; give each measuring thread its own.
type Collector struct {
	src Source
	// Whether the last Init read real counters.
	baseOK bool
}

func NewCollector(src Source) *Collector {
	if src == nil {
		src = nullSource{}
	}
	return &Collector{src: src}
}

// Collector over the process's procfs files, or one that reads zero
// counters if they cannot be opened.
func DefaultCollector() *Collector {
	ps, err := NewProcSource("", SCOPE_PROCESS)
	if err != nil {
		db.DPrintf(db.ALWAYS, "metrics: %v; kernel counters will read 0", err)
		return NewCollector(nil)
	}
	return NewCollector(ps)
}

func (c *Collector) Close() error {
	return c.src.Close()
}

// Nanoseconds on CLOCK_MONOTONIC_RAW.
func Now() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return 0
	}
	return uint64(ts.Nano())
}

func (c *Collector) sample(s *Tsample) bool {
	if err := c.src.Sample(s); err != nil {
		*s = Tsample{}
		db.DPrintf(db.METRICS_ERR, "Sample: %v", err)
		return false
	}
	return true
}

// Record the baseline in m.
func (c *Collector) Init(m *Tmetrics) {
	var s Tsample
	*m = Tmetrics{}
	c.baseOK = c.sample(&s)
	m.VoluntaryCtxSwitches = s.VolCtx
	m.InvoluntaryCtxSwitches = s.InvolCtx
	m.MinorFaults = s.MinFlt
	m.MajorFaults = s.MajFlt
	m.StartCPU = sched.GetCurrentCPU()
	m.TimestampNs = Now()
}

// a - b, or 0 if b is ahead of a.
func delta(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// Overwrite m with the deltas since Init. TimestampNs becomes the end time.
// If either side failed to sample, the counter deltas are 0.
func (c *Collector) Finish(m *Tmetrics) {
	end := Now()
	var s Tsample
	if !c.sample(&s) || !c.baseOK {
		s = Tsample{}
		m.VoluntaryCtxSwitches = 0
		m.InvoluntaryCtxSwitches = 0
		m.MinorFaults = 0
		m.MajorFaults = 0
	}
	m.RuntimeNs = delta(end, m.TimestampNs)
	m.VoluntaryCtxSwitches = delta(s.VolCtx, m.VoluntaryCtxSwitches)
	m.InvoluntaryCtxSwitches = delta(s.InvolCtx, m.InvoluntaryCtxSwitches)
	m.MinorFaults = delta(s.MinFlt, m.MinorFaults)
	m.MajorFaults = delta(s.MajFlt, m.MajorFaults)
	m.EndCPU = sched.GetCurrentCPU()
	m.TimestampNs = end
}

// Init, f, Finish.
func (c *Collector) Measure(f func()) Tmetrics {
	var m Tmetrics
	c.Init(&m)
	f()
	c.Finish(&m)
	return m
}
