// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mia-platform/logrelay/internal/logentry"
)

func testRecord() logentry.FailedRecord {
	entry := logentry.New(logentry.StackFrontend, logentry.LevelError, "x", "boom", time.Now())
	return logentry.NewFailedRecord(entry, errors.New("status 503"), time.Now())
}

func TestNotifiers(t *testing.T) {
	t.Parallel()

	record := testRecord()
	assert.NoError(t, Nop{}.DeliveryFailed(t.Context(), record))

	var received []string
	collect := Func(func(_ context.Context, r logentry.FailedRecord) error {
		received = append(received, r.LogEntry.Message)
		return nil
	})
	failing := Func(func(context.Context, logentry.FailedRecord) error {
		return assert.AnError
	})

	err := Multi{collect, failing, Nop{}, collect}.DeliveryFailed(t.Context(), record)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"boom", "boom"}, received)

	assert.NoError(t, Multi{}.DeliveryFailed(t.Context(), record))
}

func TestNATSPublisherClosedConnection(t *testing.T) {
	t.Parallel()

	publisher := &NATSPublisher{}
	assert.NoError(t, publisher.Close())
}
