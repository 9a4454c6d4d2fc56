// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/logrelay/internal/destination/fake"
	"github.com/mia-platform/logrelay/internal/dispatcher"
	"github.com/mia-platform/logrelay/internal/info"
	"github.com/mia-platform/logrelay/internal/store"
	"github.com/mia-platform/logrelay/internal/store/memory"
)

func newTestDispatcher(t *testing.T) (*dispatcher.Dispatcher, *fake.FakeDestination, *store.Queues) {
	t.Helper()

	sender := fake.NewFakeDestination(t)
	queues := store.NewQueues(memory.New(), 0)
	return dispatcher.New(sender, queues), sender, queues
}

func doRequest(t *testing.T, srv *impServer, method, path, body string) (int, string) {
	t.Helper()

	request := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := srv.app.Test(request)
	require.NoError(t, err)
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	return response.StatusCode, string(data)
}

func newTestServer(t *testing.T, d Dispatcher) *impServer {
	t.Helper()

	srv, err := NewServer(t.Context(), d)
	require.NoError(t, err)
	return srv.(*impServer)
}

func TestStatusRoutes(t *testing.T) {
	d, sender, _ := newTestDispatcher(t)
	srv := newTestServer(t, d)

	status, body := doRequest(t, srv, http.MethodGet, "/-/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"OK","name":"`+info.AppName+`","version":"`+info.Version+`"}`, body)

	status, _ = doRequest(t, srv, http.MethodGet, "/-/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, _ = doRequest(t, srv, http.MethodPost, "/-/retry", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	d.LogInfo(t.Context(), "home", "queued")
	status, body = doRequest(t, srv, http.MethodGet, "/-/stats", "")
	assert.Equal(t, http.StatusOK, status)
	stats := dispatcher.Stats{}
	require.NoError(t, json.Unmarshal([]byte(body), &stats))
	assert.Equal(t, dispatcher.Stats{PendingInMemory: 1, PendingStored: 1}, stats)

	d.Initialize(t.Context(), "tok")
	assert.Len(t, sender.Calls(), 1)

	status, _ = doRequest(t, srv, http.MethodGet, "/-/ready", "")
	assert.Equal(t, http.StatusOK, status)

	status, body = doRequest(t, srv, http.MethodPost, "/-/retry", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"attempted":0,"delivered":0,"failed":0}`, body)
}

func TestLogRoute(t *testing.T) {
	testCases := map[string]struct {
		body             string
		expectedStatus   int
		expectedMessages []string
	}{
		"valid entry is forwarded": {
			body:             `{"stack":"Backend","level":"ERROR","package":"db","message":"connection lost"}`,
			expectedStatus:   http.StatusAccepted,
			expectedMessages: []string{"connection lost"},
		},
		"invalid json": {
			body:           `{"stack":`,
			expectedStatus: http.StatusBadRequest,
		},
		"unknown stack": {
			body:           `{"stack":"mobile","level":"info","package":"home","message":"x"}`,
			expectedStatus: http.StatusBadRequest,
		},
		"unknown level": {
			body:           `{"stack":"frontend","level":"fatal","package":"home","message":"x"}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			d, sender, _ := newTestDispatcher(t)
			d.Initialize(t.Context(), "tok")
			srv := newTestServer(t, d)

			status, body := doRequest(t, srv, http.MethodPost, "/log", tc.body)
			assert.Equal(t, tc.expectedStatus, status, body)
			if tc.expectedStatus != http.StatusAccepted {
				assert.Contains(t, body, `"statusCode":400`)
			}

			if tc.expectedMessages == nil {
				assert.Empty(t, sender.Calls())
				return
			}
			assert.Equal(t, tc.expectedMessages, sender.Messages())
		})
	}
}

func TestLogRouteDeliveryFailureIsAccepted(t *testing.T) {
	sender := fake.NewFailingDestination(t, assert.AnError)
	queues := store.NewQueues(memory.New(), 0)
	d := dispatcher.New(sender, queues)
	d.Initialize(t.Context(), "tok")
	srv := newTestServer(t, d)

	status, _ := doRequest(t, srv, http.MethodPost, "/log", `{"stack":"frontend","level":"warn","package":"home","message":"lost"}`)
	assert.Equal(t, http.StatusAccepted, status)

	failed, err := queues.Failed(t.Context())
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "lost", failed[0].LogEntry.Message)
}

func TestRequestIDIsEchoed(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	srv := newTestServer(t, d)

	request := httptest.NewRequest(http.MethodPost, "/log", strings.NewReader(`{"stack":"frontend","level":"info","package":"home","message":"x"}`))
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("x-request-id", "req-1")

	response, err := srv.app.Test(request)
	require.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, "req-1", response.Header.Get("x-request-id"))
}

func TestStartServer(t *testing.T) {
	t.Setenv("HTTP_PORT", "3001")
	d, _, _ := newTestDispatcher(t)
	srv := newTestServer(t, d)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	require.Eventually(t, func() bool {
		response, err := http.Get("http://localhost:3001/-/healthz")
		if err != nil {
			return false
		}
		defer response.Body.Close()
		return response.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, srv.Stop())
	require.NoError(t, <-errChan)
}

type countingRetrier struct {
	calls atomic.Int32
	err   error
}

func (r *countingRetrier) RetryFailed(context.Context) (dispatcher.RetryResult, error) {
	r.calls.Add(1)
	return dispatcher.RetryResult{}, r.err
}

func TestRetryLoop(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		retrier := &countingRetrier{}
		RetryLoop(t.Context(), retrier, 0)
		assert.Zero(t, retrier.calls.Load())
	})

	t.Run("runs until cancelled", func(t *testing.T) {
		t.Parallel()

		retrier := &countingRetrier{err: dispatcher.ErrNotReady}
		ctx, cancel := context.WithCancel(t.Context())

		done := make(chan struct{})
		go func() {
			RetryLoop(ctx, retrier, 10*time.Millisecond)
			close(done)
		}()

		require.Eventually(t, func() bool { return retrier.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
		cancel()
		<-done
	})
}
