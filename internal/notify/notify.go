// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package notify lets a host application observe the deliveries that the
// dispatcher could not complete, without the dispatcher ever escalating them.
package notify

import (
	"context"
	"errors"

	"github.com/mia-platform/logrelay/internal/logentry"
)

// Notifier receives one call for every record added to the failed log.
// Implementations must be safe for concurrent use; errors are only logged by the caller.
type Notifier interface {
	DeliveryFailed(ctx context.Context, record logentry.FailedRecord) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) DeliveryFailed(context.Context, logentry.FailedRecord) error {
	return nil
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, record logentry.FailedRecord) error

func (f Func) DeliveryFailed(ctx context.Context, record logentry.FailedRecord) error {
	return f(ctx, record)
}

// Multi fans a notification out to every notifier, joining their errors.
type Multi []Notifier

func (m Multi) DeliveryFailed(ctx context.Context, record logentry.FailedRecord) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.DeliveryFailed(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
