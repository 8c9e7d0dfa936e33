package sched_test

import (
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	linuxsched "hwbench/util/linux/sched"
)

func TestCompile(t *testing.T) {
}

func TestBasic(t *testing.T) {
	pid := os.Getpid()
	// Get the cores we can run on
	m, err := linuxsched.SchedGetAffinity(pid)
	assert.Nil(t, err, "SchedGetAffinity")
	core := false
	for i := uint(0); i < linuxsched.GetNCores(); i++ {
		if m.Test(i) {
			core = true
		}
	}
	assert.True(t, core, "Number of cores")
}

func TestPin(t *testing.T) {
	cpus, err := linuxsched.AllowedCPUs()
	require.Nil(t, err)
	require.True(t, len(cpus) > 0)

	runtime.LockOSThread()
	// The thread keeps a narrowed mask; let it die with the goroutine.
	c := cpus[len(cpus)-1]
	err = linuxsched.PinToCPU(c)
	require.Nil(t, err)
	for i := 0; i < 10; i++ {
		assert.Nil(t, linuxsched.Yield())
		assert.Equal(t, c, linuxsched.GetCurrentCPU())
	}
}

func TestPinInvalid(t *testing.T) {
	err := linuxsched.PinToCPU(-1)
	assert.ErrorIs(t, err, linuxsched.ErrInvalidCPU)
	err = linuxsched.PinToCPU(1 << 20)
	assert.ErrorIs(t, err, linuxsched.ErrInvalidCPU)
}

func TestNice(t *testing.T) {
	// Raising niceness never needs privilege.
	assert.Nil(t, linuxsched.SetNice(1))
	if !linuxsched.CanRaisePriority() {
		assert.NotNil(t, linuxsched.SetNice(-20))
	}
}

func TestRealtimePolicyBad(t *testing.T) {
	assert.NotNil(t, linuxsched.SetRealtimePolicy(linuxsched.SCHED_OTHER, 1))
}

func TestCurrentCPU(t *testing.T) {
	c := linuxsched.GetCurrentCPU()
	assert.True(t, c >= 0)
	assert.True(t, uint(c) < linuxsched.GetNCores())
}
