package main

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"hwbench/config"
	db "hwbench/debug"
	"hwbench/lockbench"
	"hwbench/util/perf"
	"hwbench/workload"
)

var threads = []int{1, 2, 4, 8}

// Sweep the lock strategies over 1, 2, 4, and 8 threads and print every
// trial's span as CSV.
func main() {
	if len(os.Args) != 2 && len(os.Args) != 3 {
		db.DFatalf("Usage: %v niter [ntrial]\nArgs: %v", os.Args[0], os.Args)
	}
	niter, err := strconv.ParseUint(os.Args[1], 10, 64)
	if err != nil {
		db.DFatalf("Error strconv: %v", err)
	}
	ntrial := config.Conf.Lockbench.TRIALS
	if len(os.Args) == 3 {
		if ntrial, err = strconv.Atoi(os.Args[2]); err != nil {
			db.DFatalf("Error strconv: %v", err)
		}
	}
	p, err := perf.NewPerf(perf.LOCKSCALE)
	if err != nil {
		db.DFatalf("Error NewPerf: %v", err)
	}
	defer p.Done()

	start := time.Now()
	strategies := []workload.Tstrategy{workload.SPIN, workload.MUTEX, workload.ATOMIC, workload.NOLOCK}
	rs, err := lockbench.Scaling(strategies, threads, niter, config.Conf.Lockbench.PIN, ntrial)
	if err != nil {
		db.DFatalf("Error Scaling: %v", err)
	}
	perf.LogLatency("lockscale niter %d ntrial %d", start, niter, ntrial)

	w := csv.NewWriter(os.Stdout)
	w.Write([]string{"config", "trial", "elapsed_ns"})
	for _, r := range rs {
		for i, d := range r.Durations() {
			w.Write([]string{r.Label(), strconv.Itoa(i), strconv.FormatInt(d.Nanoseconds(), 10)})
		}
		db.DPrintf(db.ALWAYS, "%v", r.Summary())
	}
	w.Flush()
}
