// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mia-platform/logrelay/internal/destination"
	"github.com/mia-platform/logrelay/internal/info"
	"github.com/mia-platform/logrelay/internal/logentry"
)

const (
	// DefaultTimeout bounds a single delivery attempt.
	DefaultTimeout = 5 * time.Second

	logPath = "/log"

	// maxErrorBodySize caps how much of an error response ends up in the failed log.
	maxErrorBodySize = 512
)

var (
	_ destination.Sender = &evaluationDestination{}

	ErrMissingToken     = errors.New("missing auth token")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// EvaluationError wraps every failure of a delivery attempt.
type EvaluationError struct {
	StatusCode int
	err        error
}

func (e *EvaluationError) Error() string {
	return "evaluation: " + e.err.Error()
}

func (e *EvaluationError) Unwrap() error {
	return e.err
}

func (e *EvaluationError) Is(target error) bool {
	cre, ok := target.(*EvaluationError)
	if !ok {
		return false
	}

	return e.StatusCode == cre.StatusCode && e.err.Error() == cre.err.Error()
}

// evaluationDestination implements destination.Sender against the evaluation server.
type evaluationDestination struct {
	endpoint string
	client   *http.Client
}

// NewDestination returns a destination.Sender posting entries to baseURL + "/log".
// A zero timeout means DefaultTimeout.
func NewDestination(baseURL string, timeout time.Duration) (destination.Sender, error) {
	endpoint, err := logEndpoint(baseURL)
	if err != nil {
		return nil, handleError(err, 0)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &evaluationDestination{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// SendLog implements destination.Sender.
func (d *evaluationDestination) SendLog(ctx context.Context, token string, entry logentry.LogEntry) error {
	if token == "" {
		return handleError(ErrMissingToken, 0)
	}

	body, err := json.Marshal(entry.Payload())
	if err != nil {
		return handleError(err, 0)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return handleError(err, 0)
	}

	request.Header.Set("User-Agent", info.UserAgent())
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(request)
	if err != nil {
		return handleError(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return handleError(statusError(resp), resp.StatusCode)
	}

	return nil
}

// statusError describes a non 200 answer, using the server message when there is one.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	var respBody map[string]any
	if err := json.Unmarshal(data, &respBody); err == nil {
		if message, ok := respBody["message"].(string); ok && message != "" {
			return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, message)
		}
	}

	if text := strings.TrimSpace(string(data)); text != "" {
		return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, text)
	}
	return fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)
}

func logEndpoint(baseURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid base url %q", baseURL)
	}

	return parsed.JoinPath(logPath).String(), nil
}

func handleError(err error, statusCode int) error {
	return &EvaluationError{
		StatusCode: statusCode,
		err:        err,
	}
}
