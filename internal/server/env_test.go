// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnvironmentVariables(t *testing.T) {
	t.Run("load defaults", func(t *testing.T) {
		envVars, err := loadServerConfig()
		require.NoError(t, err)
		require.Equal(t, &config{DisableStartupMessage: true, HTTPPort: 3000}, envVars)
	})

	t.Run("load environment variables", func(t *testing.T) {
		t.Setenv("HTTP_HOST", "127.0.0.1")
		t.Setenv("HTTP_PORT", "8080")
		t.Setenv("DISABLE_STARTUP_MESSAGE", "false")
		envVars, err := loadServerConfig()
		require.NoError(t, err)
		require.Equal(t, &config{HTTPHost: "127.0.0.1", HTTPPort: 8080}, envVars)
	})

	t.Run("port out of range", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "655350")
		_, err := loadServerConfig()
		require.ErrorIs(t, err, ErrEnvVariablesNotValid)
	})

	t.Run("port not a number", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "http")
		_, err := loadServerConfig()
		require.ErrorIs(t, err, ErrEnvVariablesNotValid)
	})
}

func TestValidateEnvironmentVariables(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		port        int
		expectError bool
	}{
		"negative port":     {port: -1, expectError: true},
		"port out of range": {port: 655350, expectError: true},
		"valid port":        {port: 3000},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			err := validateEnvironmentVariables(&config{HTTPPort: tc.port})
			if tc.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
