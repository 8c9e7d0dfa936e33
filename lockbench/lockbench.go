// Package lockbench runs lock-contention trials: a fixed number of worker
// threads hammer one shared counter through one synchronization strategy,
// and the trial reports the wall-clock span from the first worker's creation
// to the last worker's return.
package lockbench

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"hwbench/config"
	db "hwbench/debug"
	"hwbench/metrics"
	"hwbench/util/linux/sched"
	"hwbench/workload"
)

var (
	ErrThreads = errors.New("thread count must be at least 1")
	ErrLost    = errors.New("lost counter updates")
)

// Run one trial. With pin, worker i is pinned to the i-th allowed CPU,
// wrapping around; a pin failure fails the trial.
func Run(strategy workload.Tstrategy, nthread int, niter uint64, pin bool) (time.Duration, error) {
	if nthread < 1 {
		return 0, fmt.Errorf("run %v with %d threads: %w", strategy, nthread, ErrThreads)
	}
	var cpus []int
	if pin {
		var err error
		cpus, err = sched.AllowedCPUs()
		if err != nil {
			return 0, fmt.Errorf("allowed cpus: %w", err)
		}
		if len(cpus) == 0 {
			return 0, fmt.Errorf("allowed cpus: %w", sched.ErrInvalidCPU)
		}
	}
	w := workload.NewLockWorkload(nthread, niter)
	defer w.Cleanup()

	var g errgroup.Group
	start := metrics.Now()
	for i := 0; i < nthread; i++ {
		i := i
		g.Go(func() error {
			runtime.LockOSThread()
			if pin {
				// Never unlocked: the runtime discards the thread with its
				// narrowed mask when this goroutine exits.
				if err := sched.PinToCPU(cpus[i%len(cpus)]); err != nil {
					return err
				}
			} else {
				defer runtime.UnlockOSThread()
			}
			w.Worker(strategy, i)
			return nil
		})
	}
	err := g.Wait()
	elapsed := time.Duration(metrics.Now() - start)
	if err != nil {
		return 0, err
	}
	if n := w.Counter(strategy); n != uint64(nthread)*niter {
		return 0, fmt.Errorf("%v: count %d want %d: %w", strategy, n, uint64(nthread)*niter, ErrLost)
	}
	db.DPrintf(db.LOCKBENCH, "Run %v nthread %d niter %d pin %v: %v", strategy, nthread, niter, pin, elapsed)
	return elapsed, nil
}

// Run ntrial trials. A failed trial is logged and skipped; the error is
// returned only if every trial failed. ntrial <= 0 means the configured
// number of trials.
func RunTrials(strategy workload.Tstrategy, nthread int, niter uint64, pin bool, ntrial int) (*Results, error) {
	if ntrial <= 0 {
		ntrial = config.Conf.Lockbench.TRIALS
	}
	if ntrial <= 0 {
		ntrial = 1
	}
	label := fmt.Sprintf("%v/%d", strategy, nthread)
	r := NewResults(ntrial, label)
	var last error
	for i := 0; i < ntrial; i++ {
		d, err := Run(strategy, nthread, niter, pin)
		if err != nil {
			db.DPrintf(db.ALWAYS, "%v trial %d skipped: %v", label, i, err)
			last = err
			continue
		}
		r.Append(d)
	}
	if r.N() == 0 {
		return r, fmt.Errorf("%v: all %d trials failed: %w", label, ntrial, last)
	}
	return r, nil
}

// Trials of each strategy at each thread count. A configuration whose
// trials all fail is left out.
func Scaling(strategies []workload.Tstrategy, threads []int, niter uint64, pin bool, ntrial int) ([]*Results, error) {
	rs := make([]*Results, 0, len(strategies)*len(threads))
	var last error
	for _, n := range threads {
		for _, s := range strategies {
			r, err := RunTrials(s, n, niter, pin, ntrial)
			if err != nil {
				db.DPrintf(db.ALWAYS, "Scaling: %v", err)
				last = err
				continue
			}
			rs = append(rs, r)
		}
	}
	if len(rs) == 0 && last != nil {
		return nil, last
	}
	return rs, nil
}
