// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package logger holds the process logger of logrelay, not to be confused with the
// log entries that logrelay forwards. Loggers travel inside context.Context values
// and every component derives a named child from the one it receives.
package logger
