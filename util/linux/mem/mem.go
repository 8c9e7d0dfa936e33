package mem

import (
	"os"
	"sync"

	psmem "github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"

	db "hwbench/debug"
)

// Memory sizes in MB.
type Tmem int64

var (
	totalMemOnce sync.Once
	totalMem     Tmem
	pageSize     = os.Getpagesize()
)

func toMB(b uint64) Tmem {
	return Tmem(b >> 20)
}

// Total amount of memory, in MB.
func GetTotalMem() Tmem {
	totalMemOnce.Do(func() {
		vm, err := psmem.VirtualMemory()
		if err != nil {
			db.DPrintf(db.ERROR, "GetTotalMem: %v", err)
			return
		}
		totalMem = toMB(vm.Total)
	})
	return totalMem
}

// Available amount of memory, in MB.
func GetAvailableMem() Tmem {
	vm, err := psmem.VirtualMemory()
	if err != nil {
		db.DPrintf(db.ERROR, "GetAvailableMem: %v", err)
		return 0
	}
	return toMB(vm.Available)
}

func PageSize() int {
	return pageSize
}

// Round n up to a whole number of pages.
func PageAlign(n int) int {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// Resident set size of this process, in bytes.
func ResidentBytes() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	mi, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return mi.RSS, nil
}
