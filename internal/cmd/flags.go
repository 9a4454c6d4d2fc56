// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	localOutputFlagName  = "local-output"
	localOutputFlagUsage = "If set, writes the log to stdout instead of sending it to the remote, the durable queues are not touched"
	defaultLocalOutput   = false

	outputFlagName  = "output"
	outputFlagShort = "o"
	outputFlagUsage = "Output format, one of: json, yaml"

	outputJSON = "json"
	outputYAML = "yaml"
)

// outputFlags holds the flag selecting how data is printed.
type outputFlags struct {
	format string
}

func (f *outputFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, outputFlagName, outputFlagShort, outputJSON, outputFlagUsage)
	_ = cmd.RegisterFlagCompletionFunc(outputFlagName, cobra.FixedCompletions([]string{outputJSON, outputYAML}, cobra.ShellCompDirectiveNoFileComp))
}

func (f *outputFlags) validate() error {
	switch strings.ToLower(f.format) {
	case outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("%w: %q", errInvalidOutput, f.format)
	}
}

// print writes value to w in the selected format.
func (f *outputFlags) print(w io.Writer, value any) error {
	if strings.ToLower(f.format) == outputYAML {
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(value); err != nil {
			return err
		}
		return encoder.Close()
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
