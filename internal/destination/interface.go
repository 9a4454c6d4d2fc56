// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package destination

import (
	"context"

	"github.com/mia-platform/logrelay/internal/logentry"
)

// Sender delivers a single log entry authenticated with token.
// A nil error means the destination confirmed the delivery.
type Sender interface {
	SendLog(ctx context.Context, token string, entry logentry.LogEntry) error
}

// SenderFunc adapts a plain function to the Sender interface.
type SenderFunc func(ctx context.Context, token string, entry logentry.LogEntry) error

// SendLog implements Sender.
func (f SenderFunc) SendLog(ctx context.Context, token string, entry logentry.LogEntry) error {
	return f(ctx, token, entry)
}
