// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package logentry defines the structured log events forwarded to the evaluation
// server and the records kept for the deliveries that did not succeed.
package logentry
