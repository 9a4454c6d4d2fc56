// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package fake

import (
	"context"
	"sync"
	"testing"

	"github.com/mia-platform/logrelay/internal/destination"
	"github.com/mia-platform/logrelay/internal/logentry"
)

var _ destination.Sender = &FakeDestination{}

// Call is a recorded SendLog invocation.
type Call struct {
	Token string
	Entry logentry.LogEntry
}

// FakeDestination records every call and answers with Err, or with the result of
// ErrFunc when set.
type FakeDestination struct {
	tb testing.TB

	Err     error
	ErrFunc func(logentry.LogEntry) error

	lock  sync.Mutex
	calls []Call
}

func NewFakeDestination(tb testing.TB) *FakeDestination {
	tb.Helper()
	return &FakeDestination{tb: tb}
}

// NewFailingDestination returns a FakeDestination failing every call with err.
func NewFailingDestination(tb testing.TB, err error) *FakeDestination {
	tb.Helper()
	return &FakeDestination{tb: tb, Err: err}
}

func (f *FakeDestination) SendLog(_ context.Context, token string, entry logentry.LogEntry) error {
	f.tb.Helper()

	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls = append(f.calls, Call{Token: token, Entry: entry})

	if f.ErrFunc != nil {
		return f.ErrFunc(entry)
	}
	return f.Err
}

// Calls returns a copy of the recorded calls.
func (f *FakeDestination) Calls() []Call {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]Call(nil), f.calls...)
}

// Messages returns the messages of the recorded calls in call order.
func (f *FakeDestination) Messages() []string {
	calls := f.Calls()
	messages := make([]string, 0, len(calls))
	for _, call := range calls {
		messages = append(messages, call.Entry.Message)
	}
	return messages
}
