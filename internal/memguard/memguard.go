// Package memguard is a soft circuit breaker that stops a batch before the
// process grows close to the machine's memory limit.
package memguard

import (
	"errors"
	"fmt"
)

// DefaultThreshold is the share of system memory the process may use.
const DefaultThreshold = 0.8

// ErrMemoryPressure is returned by Check when usage is over the threshold.
var ErrMemoryPressure = errors.New("memory usage above threshold")

// ErrUnsupported is returned by Check on platforms without a memory reading.
var ErrUnsupported = errors.New("process memory not available on this platform")

// Usage is a memory sample in bytes.
type Usage struct {
	Process uint64
	System  uint64
}

// Fraction is Process / System, or 0 when System is unknown.
func (u Usage) Fraction() float64 {
	if u.System == 0 {
		return 0
	}
	return float64(u.Process) / float64(u.System)
}

// Guard compares sampled usage against a threshold.
type Guard struct {
	Threshold float64
	Sample    func() (Usage, error)
}

func New(threshold float64) *Guard {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Guard{Threshold: threshold, Sample: Sample}
}

// Check returns an error wrapping ErrMemoryPressure when usage is over the
// threshold. Any other error means usage could not be read, ErrUnsupported
// among them.
func (g *Guard) Check() (Usage, error) {
	u, err := g.Sample()
	if err != nil {
		return u, fmt.Errorf("failed to sample memory: %w", err)
	}
	if f := u.Fraction(); f > g.Threshold {
		return u, fmt.Errorf("%w: %.0f%% of %d MiB (limit %.0f%%)",
			ErrMemoryPressure, f*100, u.System>>20, g.Threshold*100)
	}
	return u, nil
}

// Sample reads the resident set size of the process and the total system RAM.
func Sample() (Usage, error) {
	rss, err := processRSS()
	if err != nil {
		return Usage{}, err
	}
	total, err := systemMemory()
	if err != nil {
		return Usage{Process: rss}, err
	}
	return Usage{Process: rss, System: total}, nil
}
