// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package store defines the durable key/value storage used by logrelay and the
// typed queues kept on top of it: the pending log, holding entries waiting for
// their first delivery attempt, and the failed log, holding the attempts that
// did not succeed.
//
// Backends live in sub-packages; every value is a JSON document.
package store
