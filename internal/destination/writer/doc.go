// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package writer implements a destination that prints every entry to the given
// io.Writer instead of sending it to the evaluation server.
// It is useful to check what a program would send before pointing it to a real server.
package writer
