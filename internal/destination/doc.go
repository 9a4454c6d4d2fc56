// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package destination defines where log entries are delivered.
// A Sender performs exactly one delivery attempt per call; queuing and retries
// are the dispatcher's business.
package destination
