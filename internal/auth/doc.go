// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package auth obtains the bearer token used to deliver log entries.
// It talks to the registration and authentication endpoints of the evaluation
// server and caches what they return in the durable store, so that a restarted
// process can initialize its dispatcher without authenticating again.
package auth
