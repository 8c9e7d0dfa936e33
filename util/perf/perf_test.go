package perf_test

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "hwbench/debug"
	"hwbench/util/linux/sched"
	"hwbench/util/perf"
)

func TestCompile(t *testing.T) {
}

func TestGetSamples(t *testing.T) {
	hz := perf.Hz()
	assert.NotEqual(t, 0, hz, "Hz")

	cores := perf.GetActiveCores()
	assert.True(t, len(cores) > 0)
	idle1, total1 := perf.GetCPUSample(cores)
	assert.NotEqual(t, uint64(0), idle1, "GetCPUSample")
	assert.True(t, idle1 < total1, "total")
}

func TestLoad(t *testing.T) {
	l, err := perf.GetLinuxLoad()
	require.Nil(t, err)
	assert.True(t, l[0] >= 0)
	db.DPrintf(db.TEST, "load %v", l)
}

// Spin a lot in order to consume a core fully.
func spin(done chan bool) {
	for {
		select {
		case <-done:
			return
		default:
		}
	}
}

func tick(pid string, t0 *time.Time) (utime0, stime0, utime1, stime1 uint64, err error) {
	*t0 = time.Now()
	utime0, stime0, err = perf.GetCPUTimePid(pid)
	if err != nil {
		return
	}
	time.Sleep(100 * time.Millisecond)
	utime1, stime1, err = perf.GetCPUTimePid(pid)
	return
}

func TestGetCPUTimePid(t *testing.T) {
	done := make(chan bool)
	pid := strconv.Itoa(os.Getpid())

	var t0 time.Time

	utime0, stime0, utime1, stime1, err := tick(pid, &t0)
	assert.Nil(t, err)
	util := perf.UtilFromCPUTimeSample(utime0, stime0, utime1, stime1, time.Since(t0).Seconds())

	db.DPrintf(db.TEST, "Util (sleep): %v", util)

	assert.True(t, util >= 0.0, "Util negative: %v", util)
	assert.True(t, util < 5.0, "Util too high: %v", util)

	N := 3
	if n := int(sched.GetNCores()); n-1 < N {
		N = n - 1
	}
	for i := 0; i < N; i++ {
		// Start a spinning thread to consume a core.
		go spin(done)

		// Wait for the spinning thread to start
		time.Sleep(100 * time.Millisecond)

		utime0, stime0, utime1, stime1, err = tick(pid, &t0)
		assert.Nil(t, err)
		util = perf.UtilFromCPUTimeSample(utime0, stime0, utime1, stime1, time.Since(t0).Seconds())

		db.DPrintf(db.TEST, "Util (%v spinner): %v", i, util)

		assert.True(t, util >= 100.0*float64(i+1)-10.0, "Util too low (i=%v): %v", i, util)
		assert.True(t, util < 100.0*float64(i+1)+10.0, "Util too high (i=%v): %v", i, util)
	}

	for i := 0; i < N; i++ {
		done <- true
	}
}

func TestUtilSample(t *testing.T) {
	assert.Equal(t, 0.0, perf.UtilFromCPUTimeSample(10, 10, 5, 5, 1))
	assert.Equal(t, 0.0, perf.UtilFromCPUTimeSample(0, 0, 10, 10, 0))
	q := uint64(perf.Hz() / 4)
	want := 100.0 * float64(2*q) / float64(perf.Hz())
	assert.InDelta(t, want, perf.UtilFromCPUTimeSample(0, 0, q, q, 1), 1e-9)
}

func TestPerfNoLabels(t *testing.T) {
	p, err := perf.NewPerf(perf.TEST)
	require.Nil(t, err)
	p.Done()
	p.Done()
	assert.Equal(t, 0.0, p.MeanUtil())
}
