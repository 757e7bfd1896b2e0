// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/clock"
	"github.com/holomush/authcore/pkg/errutil"
)

// DefaultJanitorInterval is how often expired rows are swept.
const DefaultJanitorInterval = 5 * time.Minute

// expiredDeleter is implemented by ChallengeRepository and SessionRepository.
type expiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Janitor periodically deletes expired challenges and sessions. Expired rows
// are already inert; sweeping only bounds storage.
type Janitor struct {
	challenges expiredDeleter
	sessions   expiredDeleter
	clock      clock.Clock
	logger     *slog.Logger
	interval   time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewJanitor creates a Janitor and starts its sweep loop.
func NewJanitor(challenges ChallengeRepository, sessions SessionRepository, clk clock.Clock, logger *slog.Logger, interval time.Duration) (*Janitor, error) {
	if challenges == nil {
		return nil, oops.Code("JANITOR_INVALID_CONFIG").Errorf("challenge repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("JANITOR_INVALID_CONFIG").Errorf("session repository is required")
	}
	if logger == nil {
		return nil, oops.Code("JANITOR_INVALID_CONFIG").Errorf("logger is required")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}

	j := &Janitor{
		challenges: challenges,
		sessions:   sessions,
		clock:      clk,
		logger:     logger,
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
	j.wg.Add(1)
	go j.loop()
	return j, nil
}

// Sweep deletes everything that expired before now. It returns the number of
// challenges and sessions removed.
func (j *Janitor) Sweep(ctx context.Context) (challenges, sessions int64, err error) {
	now := j.clock.Now()
	challenges, err = j.challenges.DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, oops.Code("JANITOR_SWEEP_FAILED").With("table", "challenges").Wrap(err)
	}
	sessions, err = j.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return challenges, 0, oops.Code("JANITOR_SWEEP_FAILED").With("table", "sessions").Wrap(err)
	}
	return challenges, sessions, nil
}

// Close stops the sweep loop and waits for it to exit.
func (j *Janitor) Close() {
	j.stopOnce.Do(func() { close(j.stopChan) })
	j.wg.Wait()
}

func (j *Janitor) loop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.sweepOnce()
		}
	}
}

func (j *Janitor) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	challenges, sessions, err := j.Sweep(ctx)
	if err != nil {
		errutil.LogError(j.logger, "expired row sweep failed", err)
		return
	}
	if challenges > 0 || sessions > 0 {
		j.logger.Debug("expired rows swept", "challenges", challenges, "sessions", sessions)
	}
}
