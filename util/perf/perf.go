package perf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/load"
	"github.com/tklauser/go-sysconf"

	"hwbench/config"
	db "hwbench/debug"
	linuxsched "hwbench/util/linux/sched"
)

//
// Perf output is controlled by the HWBENCHPERF environment variable, which
// can be a list of labels (e.g., "LOCKBENCH_PPROF;SPINPERF_CPU;").
//

const (
	OUTPUT_PATH            = "/tmp/hwbench-perf"
	MUTEX_PROFILE_FRACTION = 1
	BLOCK_PROFILE_FRACTION = 5
	CPU_UTIL_SAMPLE_HZ     = 50
	DEFAULT_HZ             = 100
)

var (
	hzOnce sync.Once
	hz     int
)

// Clock ticks per second, the unit of /proc CPU times.
func Hz() int {
	hzOnce.Do(func() {
		h, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
		if err != nil || h <= 0 {
			db.DPrintf(db.PERF, "Sysconf CLK_TCK: %v; using %d", err, DEFAULT_HZ)
			h = DEFAULT_HZ
		}
		hz = int(h)
	})
	return hz
}

type Tload [3]float64

func (t Tload) String() string {
	return fmt.Sprintf("[%.1f %.1f %.1f]", t[0], t[1], t[2])
}

var (
	labelsOnce sync.Once
	labels     map[Tselector]bool
)

func initLabels() {
	labelsOnce.Do(func() {
		labels = make(map[Tselector]bool)
		for _, l := range strings.Split(os.Getenv(config.HWBENCHPERF), ";") {
			if l = strings.TrimSpace(l); l != "" {
				labels[Tselector(l)] = true
			}
		}
	})
}

type prof struct {
	active bool
	file   *os.File
}

// Tracks CPU utilization of the cores this process may run on, and
// optionally captures pprof profiles, for one labelled run.
type Perf struct {
	mu             sync.Mutex
	selector       Tselector
	done           uint32
	utilChan       chan bool
	util           prof
	pprof          prof
	pprofMem       prof
	pprofMutex     prof
	pprofBlock     prof
	cpuCyclesBusy  []float64
	cpuCyclesTotal []float64
	cpuUtilPct     []float64
	cores          map[string]bool
}

func NewPerf(s Tselector) (*Perf, error) {
	initLabels()
	db.DPrintf(db.PERF, "Perf tracking selector %v labels %v", s, labels)
	p := &Perf{}
	p.selector = s
	p.utilChan = make(chan bool, 1)
	if !labels[s+PPROF] && !labels[s+PPROF_MEM] && !labels[s+PPROF_MUTEX] && !labels[s+PPROF_BLOCK] && !labels[s+CPU] {
		return p, nil
	}
	if err := os.MkdirAll(OUTPUT_PATH, 0777); err != nil {
		db.DPrintf(db.ALWAYS, "NewPerf: MkdirAll %s err %v", OUTPUT_PATH, err)
		return nil, err
	}
	basePath := filepath.Join(OUTPUT_PATH, string(s)+"-"+strconv.Itoa(os.Getpid()))
	if labels[s+PPROF] {
		db.DPrintf(db.PERF, "Set up pprof capture")
		if err := p.setupPprof(basePath + "-pprof.out"); err != nil {
			return nil, err
		}
	}
	if labels[s+PPROF_MEM] {
		db.DPrintf(db.PERF, "Set up pprof mem capture")
		if err := p.setupProfile(&p.pprofMem, basePath+"-pprof-mem.out"); err != nil {
			return nil, err
		}
	}
	if labels[s+PPROF_MUTEX] {
		db.DPrintf(db.PERF, "Set up pprof mutex capture")
		runtime.SetMutexProfileFraction(MUTEX_PROFILE_FRACTION)
		if err := p.setupProfile(&p.pprofMutex, basePath+"-pprof-mutex.out"); err != nil {
			return nil, err
		}
	}
	if labels[s+PPROF_BLOCK] {
		db.DPrintf(db.PERF, "Set up pprof block capture")
		runtime.SetBlockProfileRate(BLOCK_PROFILE_FRACTION)
		if err := p.setupProfile(&p.pprofBlock, basePath+"-pprof-block.out"); err != nil {
			return nil, err
		}
	}
	if labels[s+CPU] {
		db.DPrintf(db.PERF, "Set up CPU util capture")
		if err := p.setupCPUUtil(CPU_UTIL_SAMPLE_HZ, basePath+"-cpu.out"); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Perf) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == 0 {
		atomic.StoreUint32(&p.done, 1)
		p.teardownPprof()
		p.teardownProfile(&p.pprofMem, "heap")
		p.teardownProfile(&p.pprofMutex, "mutex")
		p.teardownProfile(&p.pprofBlock, "block")
		p.teardownUtil()
	}
}

// Get the total cpu time usage, in ticks, for process with pid PID
func GetCPUTimePid(pid string) (utime, stime uint64, err error) {
	contents, err := os.ReadFile(filepath.Join(config.Conf.Metrics.PROC_ROOT, pid, "stat"))
	if err != nil {
		db.DPrintf(db.ALWAYS, "Couldn't get CPU time: %v", err)
		return
	}
	// Fields after the parenthesized comm start at field 3 (state).
	s := string(contents)
	i := strings.LastIndexByte(s, ')')
	if i < 0 {
		return 0, 0, fmt.Errorf("malformed stat for %v", pid)
	}
	fields := strings.Fields(s[i+1:])
	// From: https://man7.org/linux/man-pages/man5/proc.5.html
	if len(fields) < 13 {
		return 0, 0, fmt.Errorf("short stat for %v: %d fields", pid, len(fields))
	}
	utime, err = strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	stime, err = strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return
}

// Idle and total ticks summed over cores.
func GetCPUSample(cores map[string]bool) (idle, total uint64) {
	contents, err := os.ReadFile(filepath.Join(config.Conf.Metrics.PROC_ROOT, "stat"))
	if err != nil {
		db.DPrintf(db.ALWAYS, "Error read cpu util: %v", err)
		return
	}
	lines := strings.Split(strings.TrimSpace(string(contents)), "\n")
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if active, ok := cores[fields[0]]; ok && active {
			numFields := len(fields)
			for i := 1; i < numFields; i++ {
				val, err := strconv.ParseUint(fields[i], 10, 64)
				if err != nil {
					db.DPrintf(db.ALWAYS, "Error: %v %v %v", i, fields[i], err)
				}
				total += val // tally up all the numbers to get total ticks
				if i == 4 {  // idle is the 5th field in the cpu line
					idle += val
				}
			}
		}
	}
	return
}

func GetLinuxLoad() (Tload, error) {
	a, err := load.Avg()
	if err != nil {
		return Tload{}, err
	}
	return Tload{a.Load1, a.Load5, a.Load15}, nil
}

func UtilFromCPUTimeSample(utime0, stime0, utime1, stime1 uint64, secs float64) float64 {
	total0 := utime0 + stime0
	total1 := utime1 + stime1
	if total1 < total0 || secs <= 0 {
		return 0
	}
	delta := float64(total1 - total0)
	ticks := float64(Hz()) * secs
	return 100.0 * delta / ticks
}

// Only count cycles on cores we can run on
func GetActiveCores() map[string]bool {
	cores := map[string]bool{}
	m, err := linuxsched.SchedGetAffinity(os.Getpid())
	if err != nil {
		db.DPrintf(db.ALWAYS, "Error getting affinity mask: %v", err)
		return cores
	}
	for i := uint(0); i < linuxsched.GetNCores(); i++ {
		if m.Test(i) {
			cores["cpu"+strconv.Itoa(int(i))] = true
		}
	}
	return cores
}

func (p *Perf) monitorCPUUtil(sampleHz int) {
	sleepMsecs := 1000 / sampleHz
	idle0, total0 := GetCPUSample(p.cores)
	for atomic.LoadUint32(&p.done) != 1 {
		time.Sleep(time.Duration(sleepMsecs) * time.Millisecond)
		idle1, total1 := GetCPUSample(p.cores)
		idleDelta := float64(idle1 - idle0)
		totalDelta := float64(total1 - total0)
		util := 0.0
		if totalDelta > 0 {
			util = 100.0 * (totalDelta - idleDelta) / totalDelta
		}
		// Record number of cycles busy, utilized, and total
		p.cpuCyclesBusy = append(p.cpuCyclesBusy, totalDelta-idleDelta)
		p.cpuCyclesTotal = append(p.cpuCyclesTotal, totalDelta)
		p.cpuUtilPct = append(p.cpuUtilPct, util)
		idle0 = idle1
		total0 = total1
	}
	p.utilChan <- true
}

func (p *Perf) setupCPUUtil(sampleHz int, fpath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.Create(fpath)
	if err != nil {
		return fmt.Errorf("create util file %v: %w", fpath, err)
	}
	p.util.active = true
	p.util.file = f
	p.cpuCyclesBusy = make([]float64, 0, 40*sampleHz)
	p.cpuCyclesTotal = make([]float64, 0, 40*sampleHz)
	p.cpuUtilPct = make([]float64, 0, 40*sampleHz)
	p.cores = GetActiveCores()

	go p.monitorCPUUtil(sampleHz)
	return nil
}

func (p *Perf) setupPprof(fpath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.Create(fpath)
	if err != nil {
		return fmt.Errorf("create pprof profile file %v: %w", fpath, err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("start CPU profile: %w", err)
	}
	p.pprof.active = true
	p.pprof.file = f
	return nil
}

func (p *Perf) setupProfile(pr *prof, fpath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.Create(fpath)
	if err != nil {
		return fmt.Errorf("create profile file %v: %w", fpath, err)
	}
	pr.active = true
	pr.file = f
	return nil
}

// Caller holds lock.
func (p *Perf) teardownPprof() {
	if p.pprof.active {
		db.DPrintf(db.PERF, "Tear down pprof perf tracker")
		// Avoid double-closing
		p.pprof.active = false
		pprof.StopCPUProfile()
		if err := p.pprof.file.Sync(); err != nil {
			db.DPrintf(db.ALWAYS, "Error sync pprof file: %v", err)
		}
		if err := p.pprof.file.Close(); err != nil {
			db.DPrintf(db.ALWAYS, "Error close pprof file: %v", err)
		}
	}
}

// Caller holds lock.
func (p *Perf) teardownProfile(pr *prof, name string) {
	if pr.active {
		// Avoid double-closing
		pr.active = false
		if err := pprof.Lookup(name).WriteTo(pr.file, 0); err != nil {
			db.DPrintf(db.ALWAYS, "could not write %v profile: %v", name, err)
		}
		pr.file.Close()
	}
}

// Caller holds lock.
func (p *Perf) teardownUtil() {
	if p.util.active {
		<-p.utilChan
		// Avoid double-closing
		p.util.active = false
		for i := 0; i < len(p.cpuCyclesBusy); i++ {
			if _, err := fmt.Fprintf(p.util.file, "%f,%f,%f\n", p.cpuUtilPct[i], p.cpuCyclesBusy[i], p.cpuCyclesTotal[i]); err != nil {
				db.DPrintf(db.ALWAYS, "Error writing to util file: %v", err)
				break
			}
		}
		p.util.file.Close()
	}
}

// Mean utilization over the samples taken so far; 0 if none or if CPU
// capture is off. Only valid after Done.
func (p *Perf) MeanUtil() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.cpuUtilPct) == 0 {
		return 0
	}
	sum := 0.0
	for _, u := range p.cpuUtilPct {
		sum += u
	}
	return sum / float64(len(p.cpuUtilPct))
}
