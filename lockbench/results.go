package lockbench

import (
	"errors"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

var ErrNoResults = errors.New("no results")

// Wall-clock spans of the trials of one configuration.
type Results struct {
	label string
	dur   []time.Duration
	lat   []float64 // To avoid converting to float slices many times for the stats library.
}

func NewResults(n int, label string) *Results {
	return &Results{
		label: label,
		dur:   make([]time.Duration, 0, n),
	}
}

func (r *Results) Label() string {
	return r.label
}

// Add a data point and return its index.
func (r *Results) Append(d time.Duration) int {
	i := len(r.dur)
	r.dur = append(r.dur, d)
	// Kill cache
	r.lat = nil
	return i
}

func (r *Results) N() int {
	return len(r.dur)
}

func (r *Results) Durations() []time.Duration {
	return r.dur
}

func (r *Results) toFloats() []float64 {
	if r.lat != nil {
		return r.lat
	}
	lat := make([]float64, len(r.dur))
	for i := range r.dur {
		lat[i] = float64(r.dur[i])
	}
	r.lat = lat
	return lat
}

func (r *Results) Percentile(p float64) (time.Duration, error) {
	if p <= 0.0 || p > 100.0 {
		return 0, fmt.Errorf("bad percentile, not in (0, 100.0]: %v", p)
	}
	if len(r.dur) == 0 {
		return 0, ErrNoResults
	}
	l, err := stats.Percentile(r.toFloats(), p)
	if err != nil {
		return 0, err
	}
	return time.Duration(int64(l)), nil
}

func (r *Results) Median() (time.Duration, error) {
	if len(r.dur) == 0 {
		return 0, ErrNoResults
	}
	l, err := stats.Median(r.toFloats())
	if err != nil {
		return 0, err
	}
	return time.Duration(int64(l)), nil
}

// Mean and sample standard deviation. Both are 0 without results.
func (r *Results) MeanStdDev() (time.Duration, time.Duration) {
	if len(r.dur) == 0 {
		return 0, 0
	}
	m, s := stat.MeanStdDev(r.toFloats(), nil)
	if len(r.dur) == 1 {
		s = 0
	}
	return time.Duration(int64(m)), time.Duration(int64(s))
}

func (r *Results) Summary() string {
	if len(r.dur) == 0 {
		return fmt.Sprintf("= %v: no results", r.label)
	}
	mean, std := r.MeanStdDev()
	med, _ := r.Median()
	p90, _ := r.Percentile(90)
	p100, _ := r.Percentile(100)
	return fmt.Sprintf("= %v: n %d mean %v std %v 50: %v 90: %v 100: %v",
		r.label, len(r.dur), mean, std, med, p90, p100)
}

func (r *Results) String() string {
	s := ""
	for i := range r.dur {
		s += fmt.Sprintf("&{ %v %v }\n", r.label, r.dur[i])
	}
	return s
}
