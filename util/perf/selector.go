package perf

type Tselector string

// Suffixes appended to a run's selector in HWBENCHPERF.
const (
	PPROF       Tselector = "_PPROF"
	PPROF_MEM   Tselector = "_PPROF_MEM"
	PPROF_MUTEX Tselector = "_PPROF_MUTEX"
	PPROF_BLOCK Tselector = "_PPROF_BLOCK"
	CPU         Tselector = "_CPU"
)

// Run selectors.
const (
	SPINPERF  Tselector = "SPINPERF"
	MEMHOG    Tselector = "MEMHOG"
	LOCKSCALE Tselector = "LOCKSCALE"
	TEST      Tselector = "TEST"
)
