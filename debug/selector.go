package debug

type Tselector string

// ALWAYS
const (
	ALWAYS Tselector = "ALWAYS"
	ERROR            = "ERROR"
	NEVER            = "NEVER"
)

// ERR
const (
	ERR Tselector = "_ERR"
)

// Tests and drivers
const (
	TEST   Tselector = "TEST"
	BENCH            = "BENCH"
	CONFIG           = "CONFIG"
	PERF             = "PERF"
)

// Workloads
const (
	WORKLOAD  Tselector = "WORKLOAD"
	LOCKBENCH           = "LOCKBENCH"
)

// Collectors
const (
	METRICS       Tselector = "METRICS"
	METRICS_ERR             = METRICS + ERR
	HWCOUNTER               = "HWCOUNTER"
	HWCOUNTER_ERR           = HWCOUNTER + ERR
)

// Linux
const (
	NUMA      Tselector = "NUMA"
	NUMA_ERR            = NUMA + ERR
	SCHED               = "SCHED"
	SCHED_ERR           = SCHED + ERR
)
