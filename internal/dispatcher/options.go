// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dispatcher

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/mia-platform/logrelay/internal/logentry"
	"github.com/mia-platform/logrelay/internal/notify"
)

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithNotifier sets who is told about every failed delivery.
func WithNotifier(notifier notify.Notifier) Option {
	return func(d *Dispatcher) {
		if notifier != nil {
			d.notifier = notifier
		}
	}
}

// WithLimiter paces the deliveries made by FlushPending and RetryFailed.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(d *Dispatcher) {
		d.limiter = limiter
	}
}

// WithDefaultStack sets the stack used by LogError, LogWarn, LogInfo and LogDebug.
func WithDefaultStack(stack logentry.Stack) Option {
	return func(d *Dispatcher) {
		if stack != "" {
			d.defaultStack = stack
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewLimiter returns a limiter allowing eventsPerSecond deliveries; zero or less means no limit.
func NewLimiter(eventsPerSecond float64) *rate.Limiter {
	if eventsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(eventsPerSecond), 1)
}
