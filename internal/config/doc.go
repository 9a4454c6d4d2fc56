// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package config reads the logrelay settings from environment variables and
// builds the components they select: durable store, evaluation destination,
// authentication client and failure notifier.
package config
