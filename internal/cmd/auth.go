// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/mia-platform/logrelay/internal/auth"
	"github.com/mia-platform/logrelay/internal/store"
)

const (
	authCmdUsage = "auth"
	authCmdShort = "obtain a token from the evaluation server"
	authCmdLong  = `Authenticate against the evaluation server and store the token.
	The client credentials are read from the flags, then from the
	LOGRELAY_CLIENT_ID and LOGRELAY_CLIENT_SECRET environment variables and
	finally from the credentials stored by the register command.`

	registerCmdUsage = "register"
	registerCmdShort = "register with the evaluation server"
	registerCmdLong  = `Register with the evaluation server and store the client
	credentials it releases, so that following commands can authenticate.`

	registerCmdExample = `# Register and store the client credentials
	logrelay register --email me@example.com --roll-number 42 --github-username me --access-code XXXX`

	clientIDFlagName        = "client-id"
	clientIDFlagUsage       = "client id to authenticate with"
	clientSecretFlagName    = "client-secret"
	clientSecretFlagUsage   = "client secret to authenticate with"
	emailFlagName           = "email"
	emailFlagUsage          = "email used for the registration"
	rollNumberFlagName      = "roll-number"
	rollNumberFlagUsage     = "roll number used for the registration"
	githubUsernameFlagName  = "github-username"
	githubUsernameFlagUsage = "GitHub username used for the registration"
	accessCodeFlagName      = "access-code"
	accessCodeFlagUsage     = "access code received for the registration"
)

// AuthCmd returns the "auth" cli command.
func AuthCmd() *cobra.Command {
	flags := &authFlags{}
	cmd := &cobra.Command{
		Use:   authCmdUsage,
		Short: heredoc.Doc(authCmdShort),
		Long:  heredoc.Doc(authCmdLong),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := flags.execute(cmd.Context(), cmd.OutOrStdout()); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}

	flags.addFlags(cmd)
	return cmd
}

// authFlags holds the flags for the "auth" command.
type authFlags struct {
	clientID     string
	clientSecret string
}

func (f *authFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.clientID, clientIDFlagName, "", clientIDFlagUsage)
	cmd.Flags().StringVar(&f.clientSecret, clientSecretFlagName, "", clientSecretFlagUsage)
}

func (f *authFlags) execute(ctx context.Context, out io.Writer) error {
	rt, err := newRuntime(ctx, nil, false)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	opts := auth.Options{ClientID: rt.config.ClientID, ClientSecret: rt.config.ClientSecret}
	if f.clientID != "" || f.clientSecret != "" {
		opts = auth.Options{ClientID: f.clientID, ClientSecret: f.clientSecret}
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	if opts.ClientID == "" {
		credentials, err := rt.authClient.StoredCredentials(ctx)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return errNoCredentials
		case err != nil:
			return err
		}
		opts.ClientID, opts.ClientSecret = credentials.ClientID, credentials.ClientSecret
	}

	token, err := rt.authClient.Authenticate(ctx, opts.ClientID, opts.ClientSecret)
	if err != nil {
		return err
	}

	message := "authenticated as " + token.ClientID
	if !token.ExpiresAt.IsZero() {
		message += ", token expires at " + token.ExpiresAt.Format(time.RFC3339)
	}
	fmt.Fprintln(out, message)
	return nil
}

// RegisterCmd returns the "register" cli command.
func RegisterCmd() *cobra.Command {
	flags := &registerFlags{}
	cmd := &cobra.Command{
		Use:     registerCmdUsage,
		Short:   heredoc.Doc(registerCmdShort),
		Long:    heredoc.Doc(registerCmdLong),
		Example: heredoc.Doc(registerCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := flags.validate(); err != nil {
				return handleError(cmd, err)
			}

			if err := flags.execute(cmd.Context(), cmd.OutOrStdout()); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}

	flags.addFlags(cmd)
	return cmd
}

// registerFlags holds the flags for the "register" command.
type registerFlags struct {
	data auth.RegistrationData
}

func (f *registerFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.data.Email, emailFlagName, "", emailFlagUsage)
	cmd.Flags().StringVar(&f.data.RollNumber, rollNumberFlagName, "", rollNumberFlagUsage)
	cmd.Flags().StringVar(&f.data.GithubUsername, githubUsernameFlagName, "", githubUsernameFlagUsage)
	cmd.Flags().StringVar(&f.data.AccessCode, accessCodeFlagName, "", accessCodeFlagUsage)
}

func (f *registerFlags) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{emailFlagName, f.data.Email},
		{rollNumberFlagName, f.data.RollNumber},
		{githubUsernameFlagName, f.data.GithubUsername},
		{accessCodeFlagName, f.data.AccessCode},
	}

	for _, flag := range required {
		if flag.value == "" {
			return fmt.Errorf("%w: --%s", errMissingFlagSet, flag.name)
		}
	}
	return nil
}

func (f *registerFlags) execute(ctx context.Context, out io.Writer) error {
	rt, err := newRuntime(ctx, nil, false)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	credentials, err := rt.authClient.Register(ctx, f.data)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "registered as "+credentials.ClientID)
	return nil
}
