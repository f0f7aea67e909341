package common

import (
	"fmt"
	"sync"
	"time"
)

// Metrics accumulates generation outcomes for a process.
type Metrics struct {
	mu          sync.Mutex
	start       time.Time
	generations int64
	invalid     int64
	warnings    int64
	bytes       int64
	blocks      int64
	elapsed     time.Duration
}

func NewMetrics() *Metrics {
	return &Metrics{start: time.Now()}
}

// Observe records one generation of size bytes that took d and produced
// the given number of warnings.
func (m *Metrics) Observe(size int, warnings int, valid bool, d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.generations++
	if !valid {
		m.invalid++
	}
	m.warnings += int64(warnings)
	m.bytes += int64(size)
	m.blocks += int64(size / 128)
	m.elapsed += d
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Uptime:      time.Since(m.start),
		Generations: m.generations,
		Invalid:     m.invalid,
		Warnings:    m.warnings,
		Bytes:       m.bytes,
		Blocks:      m.blocks,
		Elapsed:     m.elapsed,
	}
}

type MetricsSnapshot struct {
	Uptime      time.Duration
	Generations int64
	Invalid     int64
	Warnings    int64
	Bytes       int64
	Blocks      int64
	Elapsed     time.Duration
}

// MeanDuration is the average time spent per generation.
func (s MetricsSnapshot) MeanDuration() time.Duration {
	if s.Generations <= 0 {
		return 0
	}
	return s.Elapsed / time.Duration(s.Generations)
}

func (s MetricsSnapshot) String() string {
	return fmt.Sprintf("generations=%d invalid=%d warnings=%d output=%s mean=%s",
		s.Generations, s.Invalid, s.Warnings, FormatBytes(s.Bytes), s.MeanDuration())
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}
