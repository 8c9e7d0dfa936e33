package hwcounter

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"kernel.org/pub/linux/libs/security/libcap/cap"

	"hwbench/config"
	db "hwbench/debug"
)

// Value of kernel.perf_event_paranoid.
func Paranoid() (int, error) {
	pn := filepath.Join(config.Conf.Metrics.PROC_ROOT, "sys", "kernel", "perf_event_paranoid")
	b, err := os.ReadFile(pn)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}

// Whether the process may count its own events including kernel mode: it
// holds CAP_PERFMON or CAP_SYS_ADMIN, or perf_event_paranoid is at most 1.
func Privileged() bool {
	set := cap.GetProc()
	for _, v := range []cap.Value{cap.PERFMON, cap.SYS_ADMIN} {
		ok, err := set.GetFlag(cap.Effective, v)
		if err != nil {
			db.DPrintf(db.HWCOUNTER_ERR, "GetFlag %v: %v", v, err)
			continue
		}
		if ok {
			return true
		}
	}
	p, err := Paranoid()
	if err != nil {
		db.DPrintf(db.HWCOUNTER_ERR, "Paranoid: %v", err)
		return false
	}
	return p <= 1
}
