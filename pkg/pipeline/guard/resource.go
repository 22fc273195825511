// Copyright 2026 The Cascade Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package guard

import (
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ResourceUsage is one sampled snapshot of process resource state.
// Checks are polled at invocation boundaries, not continuously
// enforced: a step that overruns between samples is only caught at the
// next checkpoint.
type ResourceUsage struct {
	// MemoryBytes is the sampled heap allocation.
	MemoryBytes uint64

	// StartTime is when sampling began for this run.
	StartTime time.Time

	// ElapsedMS is wall-clock time since StartTime.
	ElapsedMS int64
}

// DefaultSampleRate caps how often the sampler reads runtime memory
// statistics. ReadMemStats stops the world, so admission checks on hot
// nesting paths reuse the previous snapshot between refreshes.
var DefaultSampleRate = rate.Every(100 * time.Millisecond)

// ResourceSampler produces ResourceUsage snapshots, throttled so
// frequent admission checks stay cheap.
type ResourceSampler struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	start   time.Time
	last    ResourceUsage
}

// NewResourceSampler creates a sampler anchored at the current time.
func NewResourceSampler() *ResourceSampler {
	s := &ResourceSampler{
		limiter: rate.NewLimiter(DefaultSampleRate, 1),
		start:   time.Now(),
	}
	s.refresh()
	return s
}

// Sample returns the current resource snapshot. Memory is re-read at
// most at the configured rate; elapsed time is always current.
func (s *ResourceSampler) Sample() ResourceUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limiter.Allow() {
		s.refreshLocked()
	}
	usage := s.last
	usage.ElapsedMS = time.Since(s.start).Milliseconds()
	return usage
}

func (s *ResourceSampler) refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()
}

func (s *ResourceSampler) refreshLocked() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	s.last = ResourceUsage{
		MemoryBytes: stats.HeapAlloc,
		StartTime:   s.start,
	}
}
