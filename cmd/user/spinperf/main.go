package main

import (
	"encoding/csv"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	db "hwbench/debug"
	"hwbench/hwcounter"
	"hwbench/metrics"
	"hwbench/util/linux/sched"
	"hwbench/util/perf"
	"hwbench/workload"
)

// Run CPUSpin on nthread threads, each optionally pinned, and print one CSV
// row of metrics and hardware counters per thread.
func main() {
	if len(os.Args) != 5 {
		db.DFatalf("Usage: %v pin nthread niter id\nArgs: %v", os.Args[0], os.Args)
	}
	pin, err := strconv.ParseBool(os.Args[1])
	if err != nil {
		db.DFatalf("Error strconv: %v", err)
	}
	nthread, err := strconv.Atoi(os.Args[2])
	if err != nil {
		db.DFatalf("Error strconv: %v", err)
	}
	niter, err := strconv.ParseUint(os.Args[3], 10, 64)
	if err != nil {
		db.DFatalf("Error strconv: %v", err)
	}
	id := os.Args[4]
	p, err := perf.NewPerf(perf.SPINPERF)
	if err != nil {
		db.DFatalf("Error NewPerf: %v", err)
	}
	defer p.Done()
	pid := strconv.Itoa(os.Getpid())
	utime0, stime0, _ := perf.GetCPUTimePid(pid)

	start := time.Now()
	rows := spinPerf(nthread, niter, pin)
	perf.LogLatency("%v: spinPerf nthread %d niter %d", start, id, nthread, niter)
	perf.LogUtil(id, pid, utime0, stime0, start)

	w := csv.NewWriter(os.Stdout)
	w.Write(append(append([]string{"id", "thread"}, metrics.Header()...), hwcounter.Header()...))
	for i, r := range rows {
		w.Write(append([]string{id, strconv.Itoa(i)}, r...))
	}
	w.Flush()
	db.DPrintf(db.ALWAYS, "%v: %v", id, time.Since(start))
}

func spinWorker(i int, niter uint64, cpus []int, row *[]string, wg *sync.WaitGroup) {
	defer wg.Done()
	runtime.LockOSThread()
	if cpus != nil {
		if err := sched.PinToCPU(cpus[i%len(cpus)]); err != nil {
			db.DPrintf(db.ALWAYS, "thread %d: %v; unpinned", i, err)
		}
	} else {
		defer runtime.UnlockOSThread()
	}
	c := metrics.DefaultCollector()
	defer c.Close()
	hc := hwcounter.Open()
	defer hc.Close()

	var m metrics.Tmetrics
	c.Init(&m)
	hc.Start()
	r := workload.CPUSpin(niter)
	hc.Stop()
	c.Finish(&m)
	db.DPrintf(db.BENCH, "thread %d result %d %v %v", i, r, &m, hc.Counts())
	*row = append(m.Record(), hc.Counts().Record()...)
}

func spinPerf(nthread int, niter uint64, pin bool) [][]string {
	var cpus []int
	if pin {
		var err error
		if cpus, err = sched.AllowedCPUs(); err != nil || len(cpus) == 0 {
			db.DFatalf("Error AllowedCPUs: %v", err)
		}
	}
	rows := make([][]string, nthread)
	var wg sync.WaitGroup
	wg.Add(nthread)
	for i := 0; i < nthread; i++ {
		go spinWorker(i, niter, cpus, &rows[i], &wg)
	}
	wg.Wait()
	return rows
}
