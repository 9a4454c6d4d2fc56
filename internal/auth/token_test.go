// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package auth

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/logrelay/internal/store"
	"github.com/mia-platform/logrelay/internal/store/memory"
)

func TestOptionsValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Options{}.Validate())
	assert.NoError(t, Options{ClientID: "id", ClientSecret: "secret"}.Validate())
	assert.ErrorIs(t, Options{ClientID: "id"}.Validate(), ErrMissingClientSecret)
	assert.ErrorIs(t, Options{ClientSecret: "secret"}.Validate(), ErrMissingClientID)
}

func TestResolveToken(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		opts              Options
		storedToken       *StoredToken
		storedCredentials *Credentials
		expectedToken     string
		expectedAuthCalls int32
		expectedErr       error
	}{
		"static token wins": {
			opts:          Options{Token: "static", ClientID: "client-id", ClientSecret: "client-secret"},
			storedToken:   &StoredToken{Token: "stored"},
			expectedToken: "static",
		},
		"stored token": {
			storedToken:   &StoredToken{Token: "stored", ClientID: "client-id"},
			expectedToken: "stored",
		},
		"stored token of another client is ignored": {
			opts:              Options{ClientID: "client-id", ClientSecret: "client-secret"},
			storedToken:       &StoredToken{Token: "stored", ClientID: "someone-else"},
			expectedToken:     "tok123",
			expectedAuthCalls: 1,
		},
		"configured credentials": {
			opts:              Options{ClientID: "client-id", ClientSecret: "client-secret"},
			expectedToken:     "tok123",
			expectedAuthCalls: 1,
		},
		"registered credentials": {
			storedCredentials: &Credentials{ClientID: "client-id", ClientSecret: "client-secret"},
			expectedToken:     "tok123",
			expectedAuthCalls: 1,
		},
		"nothing available": {
			expectedErr: ErrNoCredentials,
		},
		"unpaired credentials": {
			opts:        Options{ClientID: "client-id"},
			expectedErr: ErrMissingClientSecret,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			authCalls := new(atomic.Int32)
			server := testEvaluationServer(t, authCalls)
			defer server.Close()

			cache := memory.New()
			if tc.storedToken != nil {
				require.NoError(t, store.SetJSON(t.Context(), cache, store.TokenKey, tc.storedToken))
			}
			if tc.storedCredentials != nil {
				require.NoError(t, store.SetJSON(t.Context(), cache, store.CredentialsKey, tc.storedCredentials))
			}

			client := newTestClient(t, server.URL, cache)
			token, err := client.ResolveToken(t.Context(), tc.opts)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expectedToken, token)
			assert.Equal(t, tc.expectedAuthCalls, authCalls.Load())
		})
	}
}

func TestTokenSourceReusesValidToken(t *testing.T) {
	t.Parallel()

	authCalls := new(atomic.Int32)
	server := testEvaluationServer(t, authCalls)
	defer server.Close()

	client := newTestClient(t, server.URL, memory.New())
	source := client.TokenSource(t.Context(), "client-id", "client-secret")

	for range 3 {
		token, err := source.Token()
		require.NoError(t, err)
		assert.Equal(t, "tok123", token.AccessToken)
		assert.Equal(t, "Bearer", token.TokenType)
	}
	assert.Equal(t, int32(1), authCalls.Load())
}
