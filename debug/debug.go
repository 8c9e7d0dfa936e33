package debug

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
)

//
// Debug output is controled by HWBENCHDEBUG environment variable, which
// can be a list of labels (e.g., "NUMA;HWCOUNTER").
//

const HWBENCHDEBUG = "HWBENCHDEBUG"

var (
	mu     sync.RWMutex
	labels map[Tselector]bool
)

func init() {
	// XXX may want to set log.Ldate when not debugging
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	SetLabels(os.Getenv(HWBENCHDEBUG))
}

// Replace the set of enabled labels. Mostly useful for tests.
func SetLabels(s string) {
	m := make(map[Tselector]bool)
	for _, l := range strings.Split(s, ";") {
		l = strings.TrimSpace(l)
		if l != "" {
			m[Tselector(l)] = true
		}
	}
	mu.Lock()
	labels = m
	mu.Unlock()
}

func WillBePrinted(label Tselector) bool {
	if label == ALWAYS {
		return true
	}
	mu.RLock()
	defer mu.RUnlock()
	return labels[label]
}

func DPrintf(label Tselector, format string, v ...interface{}) {
	if WillBePrinted(label) {
		log.Printf("%v %v", label, fmt.Sprintf(format, v...))
	}
}

func DFatalf(format string, v ...interface{}) {
	// Get info for the caller.
	pc, file, line, ok := runtime.Caller(1)
	fnDetails := runtime.FuncForPC(pc)
	if ok && fnDetails != nil {
		log.Fatalf("FATAL %v %v:%v %v", fnDetails.Name(), file, line, fmt.Sprintf(format, v...))
	} else {
		log.Fatalf("FATAL (missing details) %v", fmt.Sprintf(format, v...))
	}
}
