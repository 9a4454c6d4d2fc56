// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/mia-platform/logrelay/internal/destination"
	"github.com/mia-platform/logrelay/internal/destination/writer"
	"github.com/mia-platform/logrelay/internal/logentry"
)

const (
	logCmdUsage = "log STACK LEVEL PACKAGE MESSAGE..."
	logCmdShort = "send a log to the evaluation server"
	logCmdLong  = `Send a single log to the evaluation server.
	If a token or client credentials are available the log is delivered
	immediately, logs that cannot be delivered are kept in the failed queue.
	Without credentials the log is kept in the pending queue and delivered by
	the next flush.

	STACK is one of frontend, backend.
	LEVEL is one of error, warn, info, debug.`

	logCmdExample = `# Log a message for the home package of the frontend
	logrelay log frontend info home "page rendered"

	# Print the log instead of sending it
	logrelay log backend error db "connection lost" --local-output`
)

var (
	availableStacks = map[string]string{
		string(logentry.StackFrontend): "log produced by the frontend",
		string(logentry.StackBackend):  "log produced by the backend",
	}
	availableLevels = map[string]string{
		string(logentry.LevelError): "error level",
		string(logentry.LevelWarn):  "warning level",
		string(logentry.LevelInfo):  "info level",
		string(logentry.LevelDebug): "debug level",
	}
)

// LogCmd returns the "log" cli command.
func LogCmd() *cobra.Command {
	flags := &logFlags{}
	cmd := &cobra.Command{
		Use:     logCmdUsage,
		Short:   heredoc.Doc(logCmdShort),
		Long:    heredoc.Doc(logCmdLong),
		Example: heredoc.Doc(logCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: validArgsFunc(availableStacks, availableLevels),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.toOptions(cmd, args)
			if err != nil {
				return handleError(cmd, err)
			}

			if err := opts.execute(cmd.Context()); err != nil {
				return handleError(cmd, err)
			}

			return nil
		},
	}

	flags.addFlags(cmd)
	return cmd
}

// logFlags holds the flags for the "log" command.
type logFlags struct {
	localOutput bool
}

func (f *logFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.localOutput, localOutputFlagName, defaultLocalOutput, localOutputFlagUsage)
}

// toOptions validates the arguments and converts them to logOptions.
func (f *logFlags) toOptions(cmd *cobra.Command, args []string) (*logOptions, error) {
	if len(args) == 0 {
		return nil, errNoArguments
	}
	if err := cobra.MinimumNArgs(4)(cmd, args); err != nil {
		return nil, err
	}

	stack, err := logentry.ParseStack(args[0])
	if err != nil {
		return nil, err
	}
	level, err := logentry.ParseLevel(args[1])
	if err != nil {
		return nil, err
	}

	var sender destination.Sender
	if f.localOutput {
		sender = writer.NewDestination(cmd.OutOrStdout())
	}

	return &logOptions{
		stack:       stack,
		level:       level,
		packageTag:  args[2],
		message:     strings.Join(args[3:], " "),
		sender:      sender,
		localOutput: f.localOutput,
	}, nil
}

// logOptions holds the validated input of the "log" command.
type logOptions struct {
	stack      logentry.Stack
	level      logentry.Level
	packageTag string
	message    string

	sender      destination.Sender
	localOutput bool
}

func (o *logOptions) execute(ctx context.Context) error {
	rt, err := newRuntime(ctx, o.sender, o.localOutput)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	if o.localOutput {
		rt.dispatcher.Initialize(ctx, "local")
	} else {
		rt.initialize(ctx)
	}

	rt.dispatcher.Log(ctx, o.stack, o.level, o.packageTag, o.message)
	return nil
}
