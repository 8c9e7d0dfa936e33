package metrics_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "hwbench/debug"
	"hwbench/metrics"
	"hwbench/util/linux/sched"
)

const status = `Name:	bash
Umask:	0022
State:	S (sleeping)
Tgid:	1234
voluntary_ctxt_switches:	150
nonvoluntary_ctxt_switches:	7
`

// comm with a blank and a paren; tpgid is -1.
const stat = "1234 (my (prog)) S 1 1234 1234 34816 -1 4194304 2046 31 12 0 3 1 0 0 20 0 1 0 2837 8867840 1336\n"

func TestCompile(t *testing.T) {
}

func TestParseStatus(t *testing.T) {
	var s metrics.Tsample
	require.Nil(t, metrics.ParseStatus([]byte(status), &s))
	assert.Equal(t, uint64(150), s.VolCtx)
	assert.Equal(t, uint64(7), s.InvolCtx)

	assert.NotNil(t, metrics.ParseStatus([]byte("Name:\tx\n"), &s))
	// Only the nonvoluntary line: "voluntary" must not match inside it.
	assert.NotNil(t, metrics.ParseStatus([]byte("nonvoluntary_ctxt_switches:\t3\n"), &s))
}

func TestParseStat(t *testing.T) {
	var s metrics.Tsample
	require.Nil(t, metrics.ParseStat([]byte(stat), &s))
	assert.Equal(t, uint64(2046), s.MinFlt)
	assert.Equal(t, uint64(12), s.MajFlt)

	assert.NotNil(t, metrics.ParseStat([]byte("1234 bash S 1"), &s))
	assert.NotNil(t, metrics.ParseStat([]byte("1234 (bash) S 1 2"), &s))
}

func TestFakeProc(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "self")
	require.Nil(t, os.MkdirAll(dir, 0755))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "status"), []byte(status), 0644))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0644))

	ps, err := metrics.NewProcSource(root, metrics.SCOPE_PROCESS)
	require.Nil(t, err)
	defer ps.Close()
	var s metrics.Tsample
	require.Nil(t, ps.Sample(&s))
	assert.Equal(t, metrics.Tsample{VolCtx: 150, InvolCtx: 7, MinFlt: 2046, MajFlt: 12}, s)

	// Unchanged files give zero deltas.
	c := metrics.NewCollector(ps)
	m := c.Measure(func() {})
	assert.Equal(t, uint64(0), m.VoluntaryCtxSwitches)
	assert.Equal(t, uint64(0), m.MinorFaults)

	_, err = metrics.NewProcSource(root, metrics.SCOPE_THREAD)
	assert.NotNil(t, err)
}

func TestProcSource(t *testing.T) {
	ps, err := metrics.NewProcSource("", metrics.SCOPE_PROCESS)
	require.Nil(t, err)
	defer ps.Close()
	var s metrics.Tsample
	require.Nil(t, ps.Sample(&s))
	assert.True(t, s.MinFlt > 0)

	allocs := testing.AllocsPerRun(100, func() {
		ps.Sample(&s)
	})
	assert.Equal(t, float64(0), allocs)
	assert.Nil(t, ps.Close())
	assert.Nil(t, ps.Close(), "double close")
}

func TestThreadSource(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	ps, err := metrics.NewProcSource("", metrics.SCOPE_THREAD)
	require.Nil(t, err)
	defer ps.Close()
	var s metrics.Tsample
	assert.Nil(t, ps.Sample(&s))
}

func TestGopsutilSource(t *testing.T) {
	gs, err := metrics.NewGopsutilSource()
	require.Nil(t, err)
	var s metrics.Tsample
	require.Nil(t, gs.Sample(&s))
	assert.True(t, s.MinFlt > 0)

	c := metrics.NewCollector(gs)
	m := c.Measure(func() {})
	db.DPrintf(db.TEST, "gopsutil %v", &m)
	assert.True(t, m.TimestampNs > 0)
}

func TestEmptyBracket(t *testing.T) {
	c := metrics.DefaultCollector()
	defer c.Close()
	var m metrics.Tmetrics
	c.Init(&m)
	start := m.TimestampNs
	c.Finish(&m)
	assert.True(t, m.TimestampNs >= start)
	assert.Equal(t, m.TimestampNs-start, m.RuntimeNs)
}

func TestPinnedCPU(t *testing.T) {
	cpus, err := sched.AllowedCPUs()
	require.Nil(t, err)
	runtime.LockOSThread()
	// Not unlocked: the pinned thread exits with this goroutine.
	require.Nil(t, sched.PinToCPU(cpus[0]))

	c := metrics.DefaultCollector()
	defer c.Close()
	for i := 0; i < 10; i++ {
		m := c.Measure(func() { sched.Yield() })
		assert.Equal(t, cpus[0], m.StartCPU)
		assert.Equal(t, m.StartCPU, m.EndCPU)
	}
}

func TestFaults(t *testing.T) {
	const sz = 32 << 20
	c := metrics.DefaultCollector()
	defer c.Close()
	var buf []byte
	m := c.Measure(func() {
		buf = make([]byte, sz)
		for i := 0; i < sz; i += os.Getpagesize() {
			buf[i] = 1
		}
	})
	db.DPrintf(db.TEST, "faults %v", &m)
	assert.True(t, m.MinorFaults > 0)
	assert.True(t, m.RuntimeNs > 0)
}

func TestSaturate(t *testing.T) {
	c := metrics.NewCollector(nil)
	var base metrics.Tmetrics
	c.Init(&base)
	m := metrics.Tmetrics{
		TimestampNs:          math.MaxUint64,
		VoluntaryCtxSwitches: math.MaxUint64,
		MinorFaults:          1,
	}
	c.Finish(&m)
	assert.Equal(t, uint64(0), m.RuntimeNs)
	assert.Equal(t, uint64(0), m.VoluntaryCtxSwitches)
	assert.Equal(t, uint64(0), m.MinorFaults)
}

func TestRecord(t *testing.T) {
	m := metrics.Tmetrics{TimestampNs: 1, RuntimeNs: 2, VoluntaryCtxSwitches: 3,
		InvoluntaryCtxSwitches: 4, MinorFaults: 5, MajorFaults: 6, StartCPU: 7, EndCPU: -1}
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "-1"}, m.Record())
	h := metrics.Header()
	assert.Equal(t, len(h), len(m.Record()))
	assert.Equal(t, "timestamp_ns", h[0])
	assert.Equal(t, "end_cpu", h[7])
}

func fakeProc(t *testing.T, status string) string {
	root := t.TempDir()
	dir := filepath.Join(root, "self")
	require.Nil(t, os.MkdirAll(dir, 0755))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "status"), []byte(status), 0644))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0644))
	return root
}

// A Groups line of n entries, as seen for users in many directory groups.
func groups(n int) string {
	gs := make([]string, n)
	for i := range gs {
		gs[i] = strconv.Itoa(100000 + i)
	}
	return "Groups:\t" + strings.Join(gs, " ") + "\n"
}

func TestLongStatus(t *testing.T) {
	long := "Name:\tbash\n" + groups(600) + status
	require.True(t, len(long) > 4096)
	ps, err := metrics.NewProcSource(fakeProc(t, long), metrics.SCOPE_PROCESS)
	require.Nil(t, err)
	defer ps.Close()
	var s metrics.Tsample
	require.Nil(t, ps.Sample(&s))
	assert.Equal(t, metrics.Tsample{VolCtx: 150, InvolCtx: 7, MinFlt: 2046, MajFlt: 12}, s)
}

func TestStatusTooLong(t *testing.T) {
	ps, err := metrics.NewProcSource(fakeProc(t, groups(4000)+status), metrics.SCOPE_PROCESS)
	require.Nil(t, err)
	defer ps.Close()
	var s metrics.Tsample
	assert.ErrorIs(t, ps.Sample(&s), metrics.ErrTooLong)
}

// Reads fixed counters, failing on the calls listed in fail.
type flakySource struct {
	n    int
	fail map[int]bool
}

func (fs *flakySource) Sample(s *metrics.Tsample) error {
	fs.n++
	if fs.fail[fs.n] {
		return errors.New("sample failed")
	}
	*s = metrics.Tsample{VolCtx: 1000, InvolCtx: 100, MinFlt: 5000, MajFlt: 10}
	return nil
}

func (fs *flakySource) Close() error {
	return nil
}

func TestOneSideFails(t *testing.T) {
	for _, fail := range []int{1, 2} {
		c := metrics.NewCollector(&flakySource{fail: map[int]bool{fail: true}})
		m := c.Measure(func() {})
		assert.Equal(t, uint64(0), m.VoluntaryCtxSwitches, "fail %d", fail)
		assert.Equal(t, uint64(0), m.InvoluntaryCtxSwitches, "fail %d", fail)
		assert.Equal(t, uint64(0), m.MinorFaults, "fail %d", fail)
		assert.Equal(t, uint64(0), m.MajorFaults, "fail %d", fail)
	}
	// A later bracket with both sides good reports real deltas again.
	c := metrics.NewCollector(&flakySource{fail: map[int]bool{1: true}})
	c.Measure(func() {})
	m := c.Measure(func() {})
	assert.Equal(t, uint64(0), m.MinorFaults)
	assert.True(t, m.TimestampNs > 0)
}
