package perf

import (
	"fmt"
	"time"

	db "hwbench/debug"
)

var (
	TIME_NOT_SET time.Time = time.Unix(0, 0)
)

// Some convenience functions for logging performance-related data
func LogLatency(format string, start time.Time, v ...interface{}) {
	// Bail out early if not logging
	if !db.WillBePrinted(db.BENCH) {
		return
	}
	var since time.Duration
	if start != TIME_NOT_SET {
		since = time.Since(start)
	}
	db.DPrintf(db.BENCH, "%s lat:%v", fmt.Sprintf(format, v...), since)
}

// Log CPU utilization of pid over the interval since the sample
// (utime0, stime0) taken at start.
func LogUtil(label string, pid string, utime0, stime0 uint64, start time.Time) {
	if !db.WillBePrinted(db.BENCH) {
		return
	}
	utime1, stime1, err := GetCPUTimePid(pid)
	if err != nil {
		db.DPrintf(db.BENCH, "%s util: %v", label, err)
		return
	}
	util := UtilFromCPUTimeSample(utime0, stime0, utime1, stime1, time.Since(start).Seconds())
	db.DPrintf(db.BENCH, "%s util:%.1f%%", label, util)
}
