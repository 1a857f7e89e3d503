// Package clock provides a logical clock calibrated against the remote
// store's authoritative time. Entity timestamps are taken from this clock,
// never from raw wall-clock reads, so values written by different devices
// stay comparable.
package clock

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const sampleCount = 3

// TimeSource returns the authoritative remote time in unix milliseconds.
// Implemented by the remote data source client.
type TimeSource interface {
	ServerTime(ctx context.Context) (int64, error)
}

// Service produces logical timestamps close to the remote clock. Before
// calibration (or when calibration fails) it degrades to the raw local
// wall clock: an offset of zero.
type Service struct {
	source TimeSource

	mu         sync.Mutex
	offsetMs   int64
	calibrated bool
}

// New creates an uncalibrated clock. A nil source is allowed; Calibrate is
// then a no-op and the clock stays on local wall time.
func New(source TimeSource) *Service {
	return &Service{source: source}
}

// Now returns the current logical timestamp in unix milliseconds.
func (s *Service) Now() int64 {
	s.mu.Lock()
	offset := s.offsetMs
	s.mu.Unlock()
	return time.Now().UnixMilli() + offset
}

// Calibrated reports whether a successful calibration has run.
func (s *Service) Calibrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibrated
}

// Offset returns the current local-to-remote clock offset.
func (s *Service) Offset() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.offsetMs) * time.Millisecond
}

// Reset discards calibration so the next Calibrate call re-samples.
func (s *Service) Reset() {
	s.mu.Lock()
	s.offsetMs = 0
	s.calibrated = false
	s.mu.Unlock()
}

// Calibrate measures the offset to the remote clock with three round trips
// and keeps the median sample, rejecting a single slow outlier. Failures
// never propagate: if every sample fails the clock stays uncalibrated and
// Now falls back to wall time. Idempotent per process lifetime until Reset.
func (s *Service) Calibrate(ctx context.Context) {
	s.mu.Lock()
	if s.calibrated || s.source == nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	var offsets []int64
	for i := 0; i < sampleCount; i++ {
		start := time.Now()
		remote, err := s.source.ServerTime(ctx)
		if err != nil {
			slog.Debug("clock: calibration sample failed", "attempt", i+1, "err", err)
			continue
		}
		latency := time.Since(start) / 2
		localAtCall := start.UnixMilli()
		offsets = append(offsets, remote-(localAtCall+latency.Milliseconds()))
	}

	if len(offsets) == 0 {
		slog.Warn("clock: calibration failed, falling back to local wall clock")
		return
	}

	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	median := offsets[len(offsets)/2]

	s.mu.Lock()
	s.offsetMs = median
	s.calibrated = true
	s.mu.Unlock()
	slog.Debug("clock: calibrated", "offset_ms", median, "samples", len(offsets))
}
