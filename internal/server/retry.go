// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"context"
	"errors"
	"time"

	"github.com/mia-platform/logrelay/internal/dispatcher"
	"github.com/mia-platform/logrelay/internal/logger"
)

// Retrier drains the failed log.
type Retrier interface {
	RetryFailed(ctx context.Context) (dispatcher.RetryResult, error)
}

// RetryLoop calls RetryFailed every interval until ctx is done. A non positive
// interval returns immediately.
func RetryLoop(ctx context.Context, retrier Retrier, interval time.Duration) {
	if interval <= 0 {
		return
	}

	log := logger.Named(ctx, loggerName)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Debug("periodic retry of failed logs enabled", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := retrier.RetryFailed(ctx)
			switch {
			case errors.Is(err, dispatcher.ErrNotReady):
				log.Debug("dispatcher not initialized, retry skipped")
			case err != nil:
				log.Warn("retry of failed logs did not complete", "error", err)
			}
		}
	}
}
