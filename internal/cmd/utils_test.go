// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

// testEvaluationServer emulates the auth, register and log endpoints.
type testEvaluationServer struct {
	*httptest.Server

	logStatus atomic.Int32

	lock     sync.Mutex
	messages []string
	tokens   []string
}

func newTestEvaluationServer(t *testing.T) *testEvaluationServer {
	t.Helper()

	server := &testEvaluationServer{}
	server.logStatus.Store(http.StatusOK)
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body := make(map[string]string)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/evaluation-service/register":
			_ = json.NewEncoder(w).Encode(map[string]string{"clientId": "client-id", "clientSecret": "client-secret"})
		case "/evaluation-service/auth":
			if body["clientId"] != "client-id" || body["clientSecret"] != "client-secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "issued-token"})
		case "/evaluation-service/log":
			server.lock.Lock()
			server.messages = append(server.messages, body["message"])
			server.tokens = append(server.tokens, r.Header.Get("Authorization"))
			server.lock.Unlock()
			w.WriteHeader(int(server.logStatus.Load()))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func (s *testEvaluationServer) Messages() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.messages...)
}

func (s *testEvaluationServer) Tokens() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.tokens...)
}

// setupEnvironment points the configuration to server and to a store file in a temporary directory.
func setupEnvironment(t *testing.T, server *testEvaluationServer) {
	t.Helper()

	t.Setenv("LOGRELAY_BASE_URL", server.URL+"/evaluation-service")
	t.Setenv("LOGRELAY_STORE", "file")
	t.Setenv("LOGRELAY_STORE_PATH", filepath.Join(t.TempDir(), "store.json"))
	t.Setenv("LOGRELAY_TOKEN", "")
	t.Setenv("LOGRELAY_CLIENT_ID", "")
	t.Setenv("LOGRELAY_CLIENT_SECRET", "")
}

// executeCmd runs cmd with args and returns its standard and error output.
func executeCmd(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()

	outBuffer := new(bytes.Buffer)
	errBuffer := new(bytes.Buffer)
	cmd.SetOut(outBuffer)
	cmd.SetErr(errBuffer)
	cmd.SetUsageTemplate("usage string")
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(t.Context())
	return outBuffer.String(), errBuffer.String(), err
}
