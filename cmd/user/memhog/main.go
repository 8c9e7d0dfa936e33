package main

import (
	"encoding/csv"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"hwbench/config"
	db "hwbench/debug"
	"hwbench/metrics"
	"hwbench/util/linux/mem"
	"hwbench/util/linux/numa"
	"hwbench/util/linux/sched"
	"hwbench/util/perf"
	"hwbench/workload"
)

// Allocate a buffer on a node (or interleaved), pin to a CPU of the first
// node, and stream over the buffer for a duration under the metrics
// collector.
func main() {
	if len(os.Args) != 4 {
		db.DFatalf("Usage: %v node|interleave mem duration\nArgs: %v", os.Args[0], os.Args)
	}
	placement := os.Args[1]
	m, err := humanize.ParseBytes(os.Args[2])
	if err != nil {
		db.DFatalf("Error ParseBytes: %v", err)
	}
	if m == 0 {
		if m, err = config.Conf.DefaultBufferBytes(); err != nil {
			db.DFatalf("Error DefaultBufferBytes: %v", err)
		}
	}
	dur, err := time.ParseDuration(os.Args[3])
	if err != nil {
		db.DFatalf("Error ParseDuration: %v", err)
	}
	p, err := perf.NewPerf(perf.MEMHOG)
	if err != nil {
		db.DFatalf("Error NewPerf: %v", err)
	}
	defer p.Done()

	topo := numa.NewTopology("")
	if topo.IsAvailable() {
		db.DPrintf(db.ALWAYS, "%v", topo)
	} else {
		db.DPrintf(db.ALWAYS, "NUMA not available; allocations use the Go heap")
	}
	// Pinned for the rest of the process.
	pinMain(topo.FirstCPU(0))

	var a *numa.Allocation
	if placement == "interleave" {
		a, err = topo.AllocInterleaved(mem.PageAlign(int(m)))
	} else {
		node, err1 := strconv.Atoi(placement)
		if err1 != nil {
			db.DFatalf("Error node %v: %v", placement, err1)
		}
		a, err = topo.AllocOnNode(mem.PageAlign(int(m)), node)
	}
	if err != nil {
		db.DFatalf("Error alloc: %v", err)
	}
	defer a.Free()
	db.DPrintf(db.ALWAYS, "memhog: %v avail %vMB", a, mem.GetAvailableMem())

	buf := workload.AsWords(a.Buf)
	workload.StreamWrite(buf)
	c := metrics.DefaultCollector()
	defer c.Close()
	w := csv.NewWriter(os.Stdout)
	w.Write(append([]string{"iter", "placement", "honored"}, metrics.Header()...))
	t := time.Now()
	for iter := 0; time.Since(t) < dur; iter++ {
		mt := c.Measure(func() { workload.StreamRead(buf) })
		w.Write(append([]string{strconv.Itoa(iter), a.Placement.String(), strconv.FormatBool(a.Honored)}, mt.Record()...))
	}
	w.Flush()
	rss, _ := mem.ResidentBytes()
	db.DPrintf(db.ALWAYS, "memhog: done %v rss %v", time.Since(t), humanize.IBytes(rss))
}

func pinMain(cpu int) {
	runtime.LockOSThread()
	if err := sched.PinToCPU(cpu); err != nil {
		db.DPrintf(db.ALWAYS, "Pin to cpu %d: %v", cpu, err)
		return
	}
	db.DPrintf(db.ALWAYS, "Pinned to CPU %d", cpu)
}
