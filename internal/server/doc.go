// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package server exposes a dispatcher over HTTP with the Fiber framework.
// Local processes post their logs to /log, while the /-/ routes report health,
// readiness and the queue statistics and are excluded from request logging.
package server
