// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package auth

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/mia-platform/logrelay/internal/logger"
	"github.com/mia-platform/logrelay/internal/store"
)

// Options are the ways a token can be obtained, in order of preference.
type Options struct {
	Token        string
	ClientID     string
	ClientSecret string
}

// Validate checks that client id and secret come in pairs.
func (o Options) Validate() error {
	switch {
	case len(o.ClientID) > 0 && len(o.ClientSecret) == 0:
		return ErrMissingClientSecret
	case len(o.ClientSecret) > 0 && len(o.ClientID) == 0:
		return ErrMissingClientID
	}
	return nil
}

// tokenSource is an oauth2.TokenSource authenticating against the evaluation server.
type tokenSource struct {
	ctx          context.Context //nolint:containedctx // oauth2.TokenSource has no context parameter
	client       *Client
	clientID     string
	clientSecret string
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	stored, err := s.client.Authenticate(s.ctx, s.clientID, s.clientSecret)
	if err != nil {
		return nil, err
	}
	return stored.oauth2Token(), nil
}

func (t StoredToken) oauth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: t.Token,
		TokenType:   "Bearer",
		Expiry:      t.ExpiresAt,
	}
}

// TokenSource returns a token source for the client credentials that reuses the
// cached token while it is valid and authenticates again when it expires.
func (c *Client) TokenSource(ctx context.Context, clientID, clientSecret string) oauth2.TokenSource {
	var initial *oauth2.Token
	if stored, err := c.StoredToken(ctx); err == nil && stored.ClientID == clientID {
		initial = stored.oauth2Token()
	}

	return oauth2.ReuseTokenSource(initial, &tokenSource{
		ctx:          ctx,
		client:       c,
		clientID:     clientID,
		clientSecret: clientSecret,
	})
}

// ResolveToken returns the bearer token to initialize a dispatcher with: the static
// token first, then a cached token, then a token obtained with the configured or the
// registered client credentials. ErrNoCredentials means the caller has to keep queuing.
func (c *Client) ResolveToken(ctx context.Context, opts Options) (string, error) {
	log := logger.Named(ctx, loggerName)
	if err := opts.Validate(); err != nil {
		return "", err
	}

	if opts.Token != "" {
		log.Debug("using static token")
		return opts.Token, nil
	}

	stored, err := c.StoredToken(ctx)
	switch {
	case err == nil && (opts.ClientID == "" || stored.ClientID == "" || stored.ClientID == opts.ClientID):
		log.Debug("using stored token", "authenticatedAt", stored.AuthenticatedAt)
		return stored.Token, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		log.Warn("failed to read stored token", "error", err)
	}

	clientID, clientSecret := opts.ClientID, opts.ClientSecret
	if clientID == "" {
		credentials, err := c.StoredCredentials(ctx)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				log.Warn("failed to read stored credentials", "error", err)
			}
			return "", ErrNoCredentials
		}
		clientID, clientSecret = credentials.ClientID, credentials.ClientSecret
	}

	token, err := c.TokenSource(ctx, clientID, clientSecret).Token()
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}
