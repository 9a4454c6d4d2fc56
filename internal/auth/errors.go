// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package auth

import (
	"context"
	"errors"
)

var (
	// ErrNoCredentials is returned when no token, stored token or client credentials are available.
	ErrNoCredentials = errors.New("no token or client credentials available")
	// ErrMissingClientID is returned when a client secret is configured without its client id.
	ErrMissingClientID = errors.New("client id is required when client secret is set")
	// ErrMissingClientSecret is returned when a client id is configured without its secret.
	ErrMissingClientSecret = errors.New("client secret is required when client id is set")
	// ErrEmptyToken is returned when the server answers without a token.
	ErrEmptyToken = errors.New("empty token in response")
)

// AuthError wraps lower-level errors produced while talking to the evaluation server.
type AuthError struct {
	Operation string
	err       error
}

func (e *AuthError) Error() string {
	return e.Operation + " failed: " + e.err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.err
}

func (e *AuthError) Is(target error) bool {
	cre, ok := target.(*AuthError)
	if !ok {
		return false
	}

	return e.Operation == cre.Operation && e.err.Error() == cre.err.Error()
}

// handleError normalizes errors emitted by the auth client. A cancelled context is returned as is.
func handleError(operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	return &AuthError{
		Operation: operation,
		err:       err,
	}
}
