// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package evaluation implements the evaluation server destination.
// Every entry is posted to the /log endpoint of the server with a bearer token,
// and only an HTTP 200 answer counts as a delivery.
package evaluation
