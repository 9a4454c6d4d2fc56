// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package dispatcher forwards log entries to the evaluation server.
//
// A Dispatcher starts uninitialized: every entry is kept in memory and appended
// to the durable pending log. Initialize hands over the bearer token, flips the
// dispatcher to ready and flushes everything queued so far. Once ready, each
// entry is delivered as soon as it is logged; failed deliveries end up in the
// durable failed log, from where RetryFailed can drain them again.
//
// Logging never returns an error to the call site: delivery and storage faults
// are reported through the process logger and the configured notify.Notifier.
package dispatcher
