package mem_test

import (
	"testing"

	psmem "github.com/shirou/gopsutil/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hwbench/util/linux/mem"
)

func TestCompile(t *testing.T) {
}

func TestMeminfo(t *testing.T) {
	tot := mem.GetTotalMem()
	avail := mem.GetAvailableMem()
	assert.True(t, tot > 0, "total %v", tot)
	assert.True(t, avail > 0, "avail %v", avail)
	assert.True(t, avail <= tot, "avail %v > total %v", avail, tot)
}

func TestPageAlign(t *testing.T) {
	ps := mem.PageSize()
	assert.Equal(t, 0, mem.PageAlign(0))
	assert.Equal(t, ps, mem.PageAlign(1))
	assert.Equal(t, ps, mem.PageAlign(ps))
	assert.Equal(t, 2*ps, mem.PageAlign(ps+1))
}

func TestResident(t *testing.T) {
	rss, err := mem.ResidentBytes()
	require.Nil(t, err)
	assert.True(t, rss > 0)
}

func TestTotalMatchesVirtualMemory(t *testing.T) {
	vm, err := psmem.VirtualMemory()
	require.Nil(t, err)
	assert.Equal(t, mem.Tmem(vm.Total>>20), mem.GetTotalMem())
	assert.Equal(t, mem.GetTotalMem(), mem.GetTotalMem(), "memoised")
}
