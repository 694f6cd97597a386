// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"
)

// Statistics holds timing information for one streamed response.
type Statistics struct {
	StartTime      time.Time
	FirstDeltaTime time.Time
	EndTime        time.Time

	Deltas int
	Bytes  int

	// Derived on Finalize
	TTFT          time.Duration
	TotalDuration time.Duration
}

// NewStatistics creates a new Statistics with the start time set.
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// RecordDelta counts a content delta, stamping the first one.
func (s *Statistics) RecordDelta(text string) {
	if s.FirstDeltaTime.IsZero() {
		s.FirstDeltaTime = time.Now()
		s.TTFT = s.FirstDeltaTime.Sub(s.StartTime)
	}
	s.Deltas++
	s.Bytes += len(text)
}

// Finalize stamps the end time and computes the total duration.
func (s *Statistics) Finalize() {
	s.EndTime = time.Now()
	s.TotalDuration = s.EndTime.Sub(s.StartTime)
}

// Format returns e.g. "2.5s | 42 deltas | TTFT 234ms".
func (s *Statistics) Format() string {
	return fmt.Sprintf("%s | %d deltas | TTFT %dms",
		formatDuration(s.TotalDuration), s.Deltas, s.TTFT.Milliseconds())
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
