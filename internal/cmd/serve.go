// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/mia-platform/logrelay/internal/logger"
	"github.com/mia-platform/logrelay/internal/server"
)

const (
	serveCmdUsage = "serve"
	serveCmdShort = "start the local ingestion server"
	serveCmdLong  = `Start an HTTP server accepting logs on POST /log and forwarding
	them to the evaluation server.
	The server listens on HTTP_HOST:HTTP_PORT and exposes /-/healthz, /-/ready,
	/-/stats and /-/retry. When LOGRELAY_RETRY_INTERVAL is set the failed logs
	are retried periodically.`
)

// ServeCmd returns the "serve" cli command.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   serveCmdUsage,
		Short: heredoc.Doc(serveCmdShort),
		Long:  heredoc.Doc(serveCmdLong),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := executeServe(ctx); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}
}

// executeServe runs the server until ctx is done.
func executeServe(ctx context.Context) error {
	log := logger.Named(ctx, loggerName)

	rt, err := newRuntime(ctx, nil, false)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	srv, err := serverGetter(ctx, rt.dispatcher)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		rt.initialize(ctx)
	})
	wg.Go(func() {
		server.RetryLoop(ctx, rt.dispatcher, rt.config.RetryInterval)
	})

	log.Info("starting server")
	srv.StartAsync(ctx)

	<-ctx.Done()
	log.Info("stopping server")
	err = srv.Stop()
	wg.Wait()
	return err
}
