// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/clock"
)

// DefaultCleanupInterval is how often expired windows are dropped.
const DefaultCleanupInterval = 5 * time.Minute

// MemoryConfig configures a Memory limiter.
type MemoryConfig struct {
	// Policies defaults to DefaultPolicies when nil.
	Policies Policies

	// Clock defaults to the real clock.
	Clock clock.Clock

	// CleanupInterval defaults to DefaultCleanupInterval.
	CleanupInterval time.Duration

	// Registerer, if set, receives a gauge of tracked windows.
	Registerer prometheus.Registerer
}

type windowKey struct {
	subject string
	action  string
}

type window struct {
	start time.Time
	end   time.Time
	count int
}

// Memory is a process-local fixed-window limiter. It is safe for concurrent
// use. A background goroutine drops expired windows; call Close to stop it.
type Memory struct {
	mu       sync.Mutex
	windows  map[windowKey]*window
	policies Policies
	clock    clock.Clock

	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	windowGauge prometheus.Gauge
}

// NewMemory creates a Memory limiter and starts its cleanup goroutine.
func NewMemory(cfg MemoryConfig) (*Memory, error) {
	policies := cfg.Policies
	if policies == nil {
		policies = DefaultPolicies()
	}
	if err := policies.Validate(); err != nil {
		return nil, err
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	m := &Memory{
		windows:  make(map[windowKey]*window),
		policies: policies.clone(),
		clock:    clk,
		stopChan: make(chan struct{}),
	}

	if cfg.Registerer != nil {
		m.windowGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authcore_ratelimit_windows",
			Help: "Current number of tracked rate limit windows",
		})
		cfg.Registerer.MustRegister(m.windowGauge)
	}

	m.wg.Add(1)
	go m.cleanupLoop(interval)
	return m, nil
}

// Allow implements auth.RateLimiter.
func (m *Memory) Allow(_ context.Context, subject, action string) (bool, error) {
	policy, err := m.policies.lookup(action)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	key := windowKey{subject, action}
	w, ok := m.windows[key]
	if !ok || !now.Before(w.end) {
		m.windows[key] = &window{start: now, end: now.Add(policy.Window), count: 1}
		return true, nil
	}
	if w.count >= policy.Limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// CooldownRemaining implements auth.RateLimiter.
func (m *Memory) CooldownRemaining(_ context.Context, subject, action string) (time.Duration, error) {
	policy, err := m.policies.lookup(action)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	w, ok := m.windows[windowKey{subject, action}]
	if !ok || !now.Before(w.end) || w.count < policy.Limit {
		return 0, nil
	}
	return w.end.Sub(now), nil
}

// Reset implements auth.RateLimiter.
func (m *Memory) Reset(_ context.Context, subject, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.windows, windowKey{subject, action})
	return nil
}

// WindowCount returns the number of tracked windows.
func (m *Memory) WindowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// Cleanup removes windows that have ended.
func (m *Memory) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for key, w := range m.windows {
		if !now.Before(w.end) {
			delete(m.windows, key)
		}
	}

	if m.windowGauge != nil {
		m.windowGauge.Set(float64(len(m.windows)))
	}
}

func (m *Memory) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

// Close stops the cleanup goroutine. It blocks until the goroutine has
// stopped and is safe to call more than once.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()
	return nil
}

var _ auth.RateLimiter = (*Memory)(nil)
