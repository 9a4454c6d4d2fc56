// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

const (
	flushCmdUsage = "flush"
	flushCmdShort = "deliver the pending logs"
	flushCmdLong  = `Deliver every log kept in the pending queue.
	Logs that cannot be delivered are moved to the failed queue, the pending
	queue is always emptied.`

	retryCmdUsage = "retry"
	retryCmdShort = "deliver again the failed logs"
	retryCmdLong  = `Try once more to deliver every log kept in the failed queue.
	Delivered logs are removed, the others stay in the queue with their
	attempts counter increased. Pending logs are flushed first.`

	inspectCmdUsage = "inspect pending|failed"
	inspectCmdShort = "print the content of a durable queue"
	inspectCmdLong  = `Print the logs kept in the pending or in the failed queue.`

	inspectCmdExample = `# Print the failed logs as yaml
	logrelay inspect failed -o yaml`

	pendingQueue = "pending"
	failedQueue  = "failed"
)

var (
	availableQueues = map[string]string{
		pendingQueue: "logs waiting for a token",
		failedQueue:  "logs whose delivery failed",
	}
)

// FlushCmd returns the "flush" cli command.
func FlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   flushCmdUsage,
		Short: heredoc.Doc(flushCmdShort),
		Long:  heredoc.Doc(flushCmdLong),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := executeFlush(cmd.Context(), cmd.OutOrStdout()); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}
}

func executeFlush(ctx context.Context, out io.Writer) error {
	rt, err := newRuntime(ctx, nil, false)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	token, err := rt.token(ctx)
	if err != nil {
		return err
	}

	pending := rt.dispatcher.Stats(ctx).PendingStored
	rt.dispatcher.Initialize(ctx, token)
	stats := rt.dispatcher.Stats(ctx)

	fmt.Fprintf(out, "flushed %d pending logs, %d logs in the failed queue\n", pending, stats.FailedStored)
	return nil
}

// RetryCmd returns the "retry" cli command.
func RetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   retryCmdUsage,
		Short: heredoc.Doc(retryCmdShort),
		Long:  heredoc.Doc(retryCmdLong),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := executeRetry(cmd.Context(), cmd.OutOrStdout()); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}
}

func executeRetry(ctx context.Context, out io.Writer) error {
	rt, err := newRuntime(ctx, nil, false)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	token, err := rt.token(ctx)
	if err != nil {
		return err
	}

	rt.dispatcher.Initialize(ctx, token)
	result, err := rt.dispatcher.RetryFailed(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "retried %d failed logs: %d delivered, %d still failing\n", result.Attempted, result.Delivered, result.Failed)
	return nil
}

// InspectCmd returns the "inspect" cli command.
func InspectCmd() *cobra.Command {
	flags := &outputFlags{}
	cmd := &cobra.Command{
		Use:     inspectCmdUsage,
		Short:   heredoc.Doc(inspectCmdShort),
		Long:    heredoc.Doc(inspectCmdLong),
		Example: heredoc.Doc(inspectCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: validArgsFunc(availableQueues),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return handleError(cmd, errNoArguments)
			}

			queue := strings.ToLower(args[0])
			if _, ok := availableQueues[queue]; !ok || len(args) > 1 {
				return handleError(cmd, fmt.Errorf("%w: %s", errInvalidQueue, strings.Join(args, " ")))
			}

			if err := flags.validate(); err != nil {
				return handleError(cmd, err)
			}

			if err := executeInspect(cmd.Context(), cmd.OutOrStdout(), queue, flags); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}

	flags.addFlags(cmd)
	return cmd
}

func executeInspect(ctx context.Context, out io.Writer, queue string, flags *outputFlags) error {
	rt, err := newRuntime(ctx, nil, false)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	if queue == pendingQueue {
		entries, err := rt.dispatcher.Pending(ctx)
		if err != nil {
			return err
		}
		return flags.print(out, nonNil(entries))
	}

	records, err := rt.dispatcher.Failed(ctx)
	if err != nil {
		return err
	}
	return flags.print(out, nonNil(records))
}

// nonNil makes empty queues print as an empty list.
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
