package lockbench_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "hwbench/debug"
	"hwbench/lockbench"
	"hwbench/util/linux/sched"
	"hwbench/workload"
)

const NITER = 200_000

var strategies = []workload.Tstrategy{workload.SPIN, workload.MUTEX, workload.ATOMIC}

func TestCompile(t *testing.T) {
}

func TestResults(t *testing.T) {
	r := lockbench.NewResults(5, "test")
	_, err := r.Median()
	assert.ErrorIs(t, err, lockbench.ErrNoResults)
	mean, std := r.MeanStdDev()
	assert.Equal(t, time.Duration(0), mean)
	assert.Equal(t, time.Duration(0), std)

	for _, d := range []time.Duration{5, 1, 4, 2, 3} {
		r.Append(d * time.Millisecond)
	}
	assert.Equal(t, 5, r.N())
	med, err := r.Median()
	require.Nil(t, err)
	assert.Equal(t, 3*time.Millisecond, med)
	p100, err := r.Percentile(100)
	require.Nil(t, err)
	assert.Equal(t, 5*time.Millisecond, p100)
	_, err = r.Percentile(101)
	assert.NotNil(t, err)

	mean, std = r.MeanStdDev()
	assert.Equal(t, 3*time.Millisecond, mean)
	assert.InDelta(t, float64(1581138*time.Nanosecond), float64(std), 1000)
	db.DPrintf(db.TEST, "%v", r.Summary())
}

func TestResultsOne(t *testing.T) {
	r := lockbench.NewResults(1, "one")
	r.Append(time.Second)
	mean, std := r.MeanStdDev()
	assert.Equal(t, time.Second, mean)
	assert.Equal(t, time.Duration(0), std)
}

func TestBadThreads(t *testing.T) {
	_, err := lockbench.Run(workload.SPIN, 0, 10, false)
	assert.ErrorIs(t, err, lockbench.ErrThreads)
	r, err := lockbench.RunTrials(workload.MUTEX, -1, 10, false, 3)
	assert.ErrorIs(t, err, lockbench.ErrThreads)
	assert.Equal(t, 0, r.N())
}

func TestRun(t *testing.T) {
	for _, s := range append(strategies, workload.NOLOCK) {
		for _, pin := range []bool{false, true} {
			d, err := lockbench.Run(s, 4, 10_000, pin)
			require.Nil(t, err, "%v pin %v", s, pin)
			assert.True(t, d > 0)
		}
	}
}

func TestRunTrials(t *testing.T) {
	r, err := lockbench.RunTrials(workload.ATOMIC, 2, 10_000, false, 0)
	require.Nil(t, err)
	assert.True(t, r.N() > 0)
	assert.Equal(t, "atomic/2", r.Label())
}

func TestScaling(t *testing.T) {
	rs, err := lockbench.Scaling(strategies, []int{1, 2}, 1000, false, 2)
	require.Nil(t, err)
	assert.Equal(t, 6, len(rs))
	for _, r := range rs {
		db.DPrintf(db.TEST, "%v", r.Summary())
	}
}

func medians(t *testing.T, nthread, ntrial int) map[workload.Tstrategy]time.Duration {
	m := make(map[workload.Tstrategy]time.Duration)
	for _, s := range strategies {
		r, err := lockbench.RunTrials(s, nthread, NITER, false, ntrial)
		require.Nil(t, err)
		med, err := r.Median()
		require.Nil(t, err)
		db.DPrintf(db.TEST, "%v", r.Summary())
		m[s] = med
	}
	return m
}

func TestUncontended(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
	m := medians(t, 1, 9)
	lo, hi := m[workload.ATOMIC], m[workload.ATOMIC]
	for _, d := range m {
		lo = min(lo, d)
		hi = max(hi, d)
	}
	// No contention to tell them apart: within a small factor.
	assert.True(t, hi < 3*lo, "spans %v", m)
}

func TestContended(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
	if sched.GetNCores() < 4 {
		t.Skip("fewer than 4 cores")
	}
	m := medians(t, 4, 5)
	assert.True(t, m[workload.SPIN] >= m[workload.ATOMIC], "spans %v", m)
}
