// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package auth

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

	"github.com/mia-platform/logrelay/internal/info"
	"github.com/mia-platform/logrelay/internal/logger"
	"github.com/mia-platform/logrelay/internal/store"
)

const (
	// DefaultTimeout bounds registration and authentication calls.
	DefaultTimeout = 10 * time.Second

	authPath     = "/auth"
	registerPath = "/register"

	loggerName = "logrelay:auth"

	// expiresAtThreshold separates relative expires_in values from unix timestamps.
	expiresAtThreshold = 1_000_000_000

	operationAuthenticate = "authentication"
	operationRegister     = "registration"
)

// RegistrationData is the payload of the registration call.
type RegistrationData struct {
	RollNumber     string `json:"rollNumber"`
	Email          string `json:"email"`
	GithubUsername string `json:"githubUsername"`
	AccessCode     string `json:"accessCode"`
}

// Credentials are the client credentials released at registration.
type Credentials struct {
	ClientID     string    `json:"clientId"`
	ClientSecret string    `json:"clientSecret"`
	RegisteredAt time.Time `json:"registeredAt,omitzero"`
}

// StoredToken is the cached result of an authentication.
type StoredToken struct {
	Token           string    `json:"token"`
	AuthenticatedAt time.Time `json:"authenticatedAt"`
	ClientID        string    `json:"clientId,omitempty"`
	ExpiresAt       time.Time `json:"expiresAt,omitzero"`
}

type authRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type authResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Client talks to the registration and authentication endpoints of the evaluation server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      store.Store

	now func() time.Time
}

// NewClient returns a Client for baseURL. cache may be nil, in which case nothing is persisted.
// A zero timeout means DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, cache store.Store) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    parsed.String(),
		httpClient: &http.Client{Timeout: timeout},
		store:      cache,
		now:        time.Now,
	}, nil
}

// Register obtains client credentials and caches them.
func (c *Client) Register(ctx context.Context, data RegistrationData) (Credentials, error) {
	log := logger.Named(ctx, loggerName)
	log.Info("starting registration with evaluation server", "email", data.Email)

	var credentials Credentials
	if err := c.post(ctx, registerPath, data, &credentials); err != nil {
		return Credentials{}, handleError(operationRegister, err)
	}
	if credentials.ClientID == "" || credentials.ClientSecret == "" {
		return Credentials{}, handleError(operationRegister, errors.New("incomplete credentials in response"))
	}

	credentials.RegisteredAt = c.now().UTC()
	if c.store != nil {
		if err := store.SetJSON(ctx, c.store, store.CredentialsKey, credentials); err != nil {
			log.Warn("failed to store credentials", "error", err)
		}
	}

	log.Info("registration completed", "clientId", credentials.ClientID)
	return credentials, nil
}

// Authenticate exchanges client credentials for a bearer token and caches it.
func (c *Client) Authenticate(ctx context.Context, clientID, clientSecret string) (StoredToken, error) {
	log := logger.Named(ctx, loggerName)
	log.Debug("starting authentication", "clientId", clientID)

	var response authResponse
	if err := c.post(ctx, authPath, authRequest{ClientID: clientID, ClientSecret: clientSecret}, &response); err != nil {
		return StoredToken{}, handleError(operationAuthenticate, err)
	}

	token := response.Token
	if token == "" {
		token = response.AccessToken
	}
	if token == "" {
		return StoredToken{}, handleError(operationAuthenticate, ErrEmptyToken)
	}

	now := c.now().UTC()
	stored := StoredToken{
		Token:           token,
		AuthenticatedAt: now,
		ClientID:        clientID,
		ExpiresAt:       expiresAt(now, response.ExpiresIn),
	}

	if c.store != nil {
		if err := store.SetJSON(ctx, c.store, store.TokenKey, stored); err != nil {
			log.Warn("failed to store token", "error", err)
		}
	}

	log.Info("authentication completed", "clientId", clientID)
	return stored, nil
}

// StoredToken returns the cached token. store.ErrNotFound is returned when there is
// none, and also when it is known to be expired.
func (c *Client) StoredToken(ctx context.Context) (StoredToken, error) {
	if c.store == nil {
		return StoredToken{}, store.ErrNotFound
	}

	var token StoredToken
	if err := store.GetJSON(ctx, c.store, store.TokenKey, &token); err != nil {
		return StoredToken{}, err
	}
	if token.Token == "" || token.expired(c.now()) {
		return StoredToken{}, store.ErrNotFound
	}
	return token, nil
}

// StoredCredentials returns the credentials cached at registration.
func (c *Client) StoredCredentials(ctx context.Context) (Credentials, error) {
	if c.store == nil {
		return Credentials{}, store.ErrNotFound
	}

	var credentials Credentials
	if err := store.GetJSON(ctx, c.store, store.CredentialsKey, &credentials); err != nil {
		return Credentials{}, err
	}
	if credentials.ClientID == "" || credentials.ClientSecret == "" {
		return Credentials{}, store.ErrNotFound
	}
	return credentials, nil
}

func (t StoredToken) expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// expiresAt interprets expires_in either as seconds from now or as a unix timestamp.
func expiresAt(now time.Time, expiresIn int64) time.Time {
	switch {
	case expiresIn <= 0:
		return time.Time{}
	case expiresIn >= expiresAtThreshold:
		return time.Unix(expiresIn, 0).UTC()
	default:
		return now.Add(time.Duration(expiresIn) * time.Second)
	}
}

func (c *Client) post(ctx context.Context, path string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	request.Header.Set("User-Agent", info.UserAgent())
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusUnauthorized:
		return fmt.Errorf("invalid credentials: status %d", resp.StatusCode)
	default:
		var errResp map[string]any
		if err := json.Unmarshal(data, &errResp); err == nil {
			if message, ok := errResp["message"].(string); ok {
				return fmt.Errorf("status %d: %s", resp.StatusCode, message)
			}
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
