// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mia-platform/logrelay/internal/destination"
	"github.com/mia-platform/logrelay/internal/logentry"
	"github.com/mia-platform/logrelay/internal/logger"
	"github.com/mia-platform/logrelay/internal/notify"
	"github.com/mia-platform/logrelay/internal/store"
)

const (
	loggerName = "logrelay:dispatcher"
)

var (
	// ErrNotReady is returned by operations that need a token before Initialize has been called.
	ErrNotReady = errors.New("dispatcher not initialized")
)

// Stats is a snapshot of the dispatcher state.
type Stats struct {
	Initialized     bool `json:"initialized" yaml:"initialized"`
	HasAuthToken    bool `json:"hasAuthToken" yaml:"hasAuthToken"`
	PendingInMemory int  `json:"pendingInMemory" yaml:"pendingInMemory"`
	PendingStored   int  `json:"pendingStored" yaml:"pendingStored"`
	FailedStored    int  `json:"failedStored" yaml:"failedStored"`
}

// RetryResult summarizes a RetryFailed run.
type RetryResult struct {
	Attempted int `json:"attempted" yaml:"attempted"`
	Delivered int `json:"delivered" yaml:"delivered"`
	Failed    int `json:"failed" yaml:"failed"`
}

// Dispatcher queues log entries until it is initialized and delivers them afterwards.
// It is safe for concurrent use.
type Dispatcher struct {
	sender       destination.Sender
	queues       *store.Queues
	notifier     notify.Notifier
	limiter      *rate.Limiter
	defaultStack logentry.Stack
	now          func() time.Time

	// lock guards token, ready and pending. The durable append of the
	// uninitialized path also happens under it.
	lock    sync.Mutex
	token   string
	ready   bool
	pending []logentry.LogEntry

	// drainLock serializes FlushPending and RetryFailed.
	drainLock sync.Mutex
}

// New returns an uninitialized Dispatcher delivering through sender and keeping its
// durable queues in queues.
func New(sender destination.Sender, queues *store.Queues, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:       sender,
		queues:       queues,
		notifier:     notify.Nop{},
		defaultStack: logentry.StackFrontend,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Initialize stores token, marks the dispatcher as ready and flushes every pending
// entry before returning. Calling it again replaces the token. An empty token is ignored.
func (d *Dispatcher) Initialize(ctx context.Context, token string) {
	log := logger.Named(ctx, loggerName)
	if token == "" {
		log.Warn("empty token, dispatcher stays uninitialized")
		return
	}

	d.lock.Lock()
	wasReady := d.ready
	d.token = token
	d.ready = true
	d.lock.Unlock()

	if wasReady {
		log.Debug("token replaced")
	} else {
		log.Info("dispatcher initialized")
	}

	d.FlushPending(ctx)
}

// Ready reports whether Initialize has been called with a token.
func (d *Dispatcher) Ready() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.ready
}

// Log records one entry. Before initialization the entry is queued, afterwards it
// is delivered immediately and recorded in the failed log if delivery does not succeed.
func (d *Dispatcher) Log(ctx context.Context, stack logentry.Stack, level logentry.Level, packageTag, message string) {
	log := logger.Named(ctx, loggerName)
	entry := logentry.New(stack, level, packageTag, message, d.now())

	d.lock.Lock()
	if !d.ready {
		d.pending = append(d.pending, entry)
		if err := d.queues.AppendPending(context.WithoutCancel(ctx), entry); err != nil {
			log.Warn("failed to store pending log", "id", entry.ID, "error", err)
		}
		d.lock.Unlock()
		log.Trace("dispatcher not initialized, log queued", "id", entry.ID)
		return
	}
	token := d.token
	d.lock.Unlock()

	d.deliver(ctx, token, entry)
}

// LogError logs message at error level on the default stack.
func (d *Dispatcher) LogError(ctx context.Context, packageTag, message string) {
	d.Log(ctx, d.defaultStack, logentry.LevelError, packageTag, message)
}

// LogWarn logs message at warn level on the default stack.
func (d *Dispatcher) LogWarn(ctx context.Context, packageTag, message string) {
	d.Log(ctx, d.defaultStack, logentry.LevelWarn, packageTag, message)
}

// LogInfo logs message at info level on the default stack.
func (d *Dispatcher) LogInfo(ctx context.Context, packageTag, message string) {
	d.Log(ctx, d.defaultStack, logentry.LevelInfo, packageTag, message)
}

// LogDebug logs message at debug level on the default stack.
func (d *Dispatcher) LogDebug(ctx context.Context, packageTag, message string) {
	d.Log(ctx, d.defaultStack, logentry.LevelDebug, packageTag, message)
}

// FlushPending delivers the in-memory queue and then the durable pending log, one
// entry at a time. Entries found in both are delivered once. Every walked entry is
// removed from the durable pending log, whatever the outcome of its delivery, while
// entries appended in the meantime by other processes stay pending.
// It does nothing until the dispatcher is initialized.
func (d *Dispatcher) FlushPending(ctx context.Context) {
	log := logger.Named(ctx, loggerName)

	d.drainLock.Lock()
	defer d.drainLock.Unlock()

	d.lock.Lock()
	if !d.ready {
		d.lock.Unlock()
		log.Debug("dispatcher not initialized, skipping flush")
		return
	}
	token := d.token
	inMemory := d.pending
	d.pending = nil
	d.lock.Unlock()

	walked := make(map[string]struct{}, len(inMemory))
	for _, entry := range inMemory {
		d.wait(ctx)
		d.deliver(ctx, token, entry)
		walked[entry.ID] = struct{}{}
	}
	attempts := len(inMemory)

	stored, err := d.queues.Pending(ctx)
	if err != nil {
		log.Warn("failed to read pending logs", "error", err)
	}

	for _, entry := range stored {
		if _, ok := walked[entry.ID]; ok && entry.ID != "" {
			continue
		}
		d.wait(ctx)
		d.deliver(ctx, token, entry)
		walked[entry.ID] = struct{}{}
		attempts++
	}

	if _, err := d.queues.RemovePending(context.WithoutCancel(ctx), walked); err != nil {
		log.Warn("failed to remove flushed pending logs", "error", err)
	}

	if attempts > 0 {
		log.Debug("pending logs flushed", "count", attempts)
	}
}

type recordKey struct {
	id       string
	failedAt int64
}

func keyOf(record logentry.FailedRecord) recordKey {
	return recordKey{id: record.LogEntry.ID, failedAt: record.FailedAt.UnixNano()}
}

// RetryFailed attempts every record of the failed log once more. Delivered records
// are removed, the others are kept with their attempt counter increased.
func (d *Dispatcher) RetryFailed(ctx context.Context) (RetryResult, error) {
	log := logger.Named(ctx, loggerName)

	d.drainLock.Lock()
	defer d.drainLock.Unlock()

	d.lock.Lock()
	ready, token := d.ready, d.token
	d.lock.Unlock()
	if !ready {
		return RetryResult{}, ErrNotReady
	}

	records, err := d.queues.Failed(ctx)
	if err != nil {
		return RetryResult{}, err
	}

	result := RetryResult{}
	// a nil value marks a delivered record
	outcomes := make(map[recordKey]*logentry.FailedRecord, len(records))
	for _, record := range records {
		key := keyOf(record)
		if _, seen := outcomes[key]; seen {
			continue
		}

		d.wait(ctx)
		result.Attempted++
		if err := d.sender.SendLog(ctx, token, record.LogEntry); err != nil {
			retried := record.Retried(err, d.now())
			outcomes[key] = &retried
			result.Failed++
			d.notify(ctx, retried)
			continue
		}
		outcomes[key] = nil
		result.Delivered++
	}

	err = d.queues.UpdateFailed(context.WithoutCancel(ctx), func(current []logentry.FailedRecord) []logentry.FailedRecord {
		updated := make([]logentry.FailedRecord, 0, len(current))
		for _, record := range current {
			outcome, ok := outcomes[keyOf(record)]
			switch {
			case !ok:
				updated = append(updated, record)
			case outcome != nil:
				updated = append(updated, *outcome)
			}
		}
		return updated
	})
	if err != nil {
		return result, err
	}

	log.Info("failed logs retried", "attempted", result.Attempted, "delivered", result.Delivered, "failed", result.Failed)
	return result, nil
}

// Stats returns a snapshot of the dispatcher state. Storage errors are logged and
// leave the stored counters at zero.
func (d *Dispatcher) Stats(ctx context.Context) Stats {
	log := logger.Named(ctx, loggerName)

	d.lock.Lock()
	stats := Stats{
		Initialized:     d.ready,
		HasAuthToken:    d.token != "",
		PendingInMemory: len(d.pending),
	}
	d.lock.Unlock()

	if pending, err := d.queues.Pending(ctx); err != nil {
		log.Warn("failed to read pending logs", "error", err)
	} else {
		stats.PendingStored = len(pending)
	}

	if failed, err := d.queues.Failed(ctx); err != nil {
		log.Warn("failed to read failed logs", "error", err)
	} else {
		stats.FailedStored = len(failed)
	}

	return stats
}

// Pending returns the durable pending log.
func (d *Dispatcher) Pending(ctx context.Context) ([]logentry.LogEntry, error) {
	return d.queues.Pending(ctx)
}

// Failed returns the durable failed log.
func (d *Dispatcher) Failed(ctx context.Context) ([]logentry.FailedRecord, error) {
	return d.queues.Failed(ctx)
}

func (d *Dispatcher) deliver(ctx context.Context, token string, entry logentry.LogEntry) {
	log := logger.Named(ctx, loggerName)

	err := d.sender.SendLog(ctx, token, entry)
	if err == nil {
		log.Trace("log delivered", "id", entry.ID)
		return
	}

	log.Warn("failed to deliver log", "id", entry.ID, "error", err)
	record := logentry.NewFailedRecord(entry, err, d.now())

	evicted, err := d.queues.AppendFailed(context.WithoutCancel(ctx), record)
	if err != nil {
		log.Warn("failed to store failed log", "id", entry.ID, "error", err)
	}
	if evicted > 0 {
		log.Warn("failed log limit reached, oldest records dropped", "count", evicted)
	}

	d.notify(ctx, record)
}

func (d *Dispatcher) notify(ctx context.Context, record logentry.FailedRecord) {
	if err := d.notifier.DeliveryFailed(ctx, record); err != nil {
		logger.Named(ctx, loggerName).Warn("failed to notify delivery failure", "id", record.LogEntry.ID, "error", err)
	}
}

func (d *Dispatcher) wait(ctx context.Context) {
	if d.limiter == nil {
		return
	}

	// a cancelled context makes the following delivery fail and be recorded
	if err := d.limiter.Wait(ctx); err != nil {
		logger.Named(ctx, loggerName).Debug("rate limiter wait interrupted", "error", err)
	}
}
