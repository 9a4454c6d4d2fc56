// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mia-platform/logrelay/internal/auth"
	"github.com/mia-platform/logrelay/internal/config"
	"github.com/mia-platform/logrelay/internal/destination"
	"github.com/mia-platform/logrelay/internal/dispatcher"
	"github.com/mia-platform/logrelay/internal/logger"
	"github.com/mia-platform/logrelay/internal/server"
	"github.com/mia-platform/logrelay/internal/store"
	"github.com/mia-platform/logrelay/internal/store/memory"
)

const (
	loggerName = "logrelay:cmd"
)

var (
	errNoArguments    = errors.New("no arguments provided")
	errInvalidQueue   = errors.New("invalid queue name provided")
	errInvalidOutput  = errors.New("invalid output format")
	errNoCredentials  = errors.New("no token or client credentials configured, run the register or auth command first")
	errMissingFlagSet = errors.New("missing required flag")

	// configLoader reads the configuration. It can be overridden for testing purposes.
	configLoader = config.Load
	// serverGetter builds the ingestion server. It can be overridden for testing purposes.
	serverGetter = server.NewServer
)

// handleError will do custom print error handling based on the type of error received.
// it will return nil if the command must return 0 exit code, otherwise it will return
// the original error.
func handleError(cmd *cobra.Command, err error) error {
	switch {
	case errors.Is(err, errNoArguments):
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return nil
	case errors.Is(err, errInvalidQueue), errors.Is(err, errMissingFlagSet):
		cmd.PrintErrln(err)
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return err
	default:
		cmd.PrintErrln(err)
		return err
	}
}

func validArgsFunc(positional ...map[string]string) cobra.CompletionFunc {
	return func(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var comps []string
		if len(args) < len(positional) {
			for name, description := range positional[len(args)] {
				if strings.HasPrefix(name, toComplete) {
					comps = append(comps, cobra.CompletionWithDesc(name, description))
				}
			}
		}

		return comps, cobra.ShellCompDirectiveNoFileComp
	}
}

// runtime bundles the components a command works with.
type runtime struct {
	config     config.Config
	store      store.Store
	queues     *store.Queues
	authClient *auth.Client
	dispatcher *dispatcher.Dispatcher

	closers []func() error
}

// newRuntime assembles store, auth client and dispatcher from the environment.
// A nil sender means the evaluation server; ephemeral keeps everything in memory.
func newRuntime(ctx context.Context, sender destination.Sender, ephemeral bool) (*runtime, error) {
	cfg, err := configLoader()
	if err != nil {
		return nil, err
	}

	rt := &runtime{config: cfg}
	if ephemeral {
		rt.store = memory.New()
	} else if rt.store, err = cfg.OpenStore(ctx); err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, rt.store.Close)

	if rt.authClient, err = cfg.AuthClient(rt.store); err != nil {
		rt.close(ctx)
		return nil, err
	}

	if sender == nil {
		if sender, err = cfg.Sender(); err != nil {
			rt.close(ctx)
			return nil, err
		}
	}

	notifier, closeNotifier, err := cfg.Notifier(ctx)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}
	rt.closers = append(rt.closers, closeNotifier)

	rt.queues = store.NewQueues(rt.store, cfg.FailedLogLimit)
	rt.dispatcher = dispatcher.New(sender, rt.queues,
		dispatcher.WithNotifier(notifier),
		dispatcher.WithLimiter(dispatcher.NewLimiter(cfg.FlushRate)),
		dispatcher.WithDefaultStack(cfg.Stack()),
	)
	return rt, nil
}

// token returns the bearer token to initialize the dispatcher with.
func (rt *runtime) token(ctx context.Context) (string, error) {
	token, err := rt.authClient.ResolveToken(ctx, rt.config.AuthOptions())
	if errors.Is(err, auth.ErrNoCredentials) {
		return "", errNoCredentials
	}
	return token, err
}

// initialize hands the resolved token to the dispatcher. Without a usable token the
// dispatcher keeps queuing and the reason is only logged.
func (rt *runtime) initialize(ctx context.Context) bool {
	log := logger.Named(ctx, loggerName)

	token, err := rt.token(ctx)
	if err != nil {
		log.Warn("dispatcher not initialized, logs will be queued", "error", err)
		return false
	}

	rt.dispatcher.Initialize(ctx, token)
	return true
}

func (rt *runtime) close(ctx context.Context) {
	log := logger.Named(ctx, loggerName)
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			log.Warn("error releasing resources", "error", err)
		}
	}
}
