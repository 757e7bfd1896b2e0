// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authcore/pkg/errutil"
)

// Delivery defaults.
const (
	DefaultDeliveryTimeout = 10 * time.Second
	DefaultDeliveryWorkers = 4
	DefaultDeliveryQueue   = 256
)

// Notifier delivers a one-time code out of band. Implementations live in
// internal/notify.
type Notifier interface {
	Send(ctx context.Context, email string, purpose Purpose, code string) error
}

// DeliveryConfig configures a Dispatcher. Zero values take defaults.
type DeliveryConfig struct {
	Timeout time.Duration
	Workers int
	Queue   int
}

type delivery struct {
	email   string
	purpose Purpose
	code    string
}

// Dispatcher sends codes asynchronously so request latency never depends on
// the notification backend. Failures are logged and counted, never returned.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan delivery
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher and starts its workers. Call Close to
// drain the queue and stop them.
func NewDispatcher(notifier Notifier, logger *slog.Logger, cfg DeliveryConfig) (*Dispatcher, error) {
	if notifier == nil {
		return nil, oops.Code("DELIVERY_INVALID_CONFIG").Errorf("notifier is required")
	}
	if logger == nil {
		return nil, oops.Code("DELIVERY_INVALID_CONFIG").Errorf("logger is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDeliveryTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultDeliveryWorkers
	}
	if cfg.Queue <= 0 {
		cfg.Queue = DefaultDeliveryQueue
	}

	d := &Dispatcher{
		notifier: notifier,
		logger:   logger,
		timeout:  cfg.Timeout,
		jobs:     make(chan delivery, cfg.Queue),
	}
	d.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go d.work()
	}
	return d, nil
}

// Dispatch queues a delivery and returns immediately. When the queue is full
// or the dispatcher is closed the delivery is dropped and logged.
func (d *Dispatcher) Dispatch(email string, purpose Purpose, code string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("delivery dropped: dispatcher closed", "purpose", string(purpose))
		DeliveryFailures.WithLabelValues(string(purpose)).Inc()
		return
	}

	select {
	case d.jobs <- delivery{email: email, purpose: purpose, code: code}:
	default:
		d.logger.Warn("delivery dropped: queue full", "purpose", string(purpose))
		DeliveryFailures.WithLabelValues(string(purpose)).Inc()
	}
}

// Close stops accepting deliveries, waits for queued ones to finish and
// stops the workers. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.send(job)
	}
}

func (d *Dispatcher) send(job delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.notifier.Send(ctx, job.email, job.purpose, job.code); err != nil {
		DeliveryFailures.WithLabelValues(string(job.purpose)).Inc()
		errutil.LogError(d.logger, "one-time code delivery failed",
			oops.Code("DELIVERY_FAILED").With("purpose", string(job.purpose)).Wrap(err))
		return
	}
	d.logger.Debug("one-time code delivered", "purpose", string(job.purpose))
}
