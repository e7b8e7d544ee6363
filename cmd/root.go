// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nexusdm/dmengine/pkg/config"
)

// Version is the engine version, set at build time via -ldflags.
var Version = "development"

var rootCmd = &cobra.Command{
	Use:          "dmengine",
	Short:        "Schema migration engine",
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	config.RootFlags(rootCmd)
}

// Execute executes the root command, dispatching to the default single/
// persistent JSON-RPC loop when no subcommand is given, or to the `cli`
// subcommand otherwise.
func Execute() error {
	rootCmd.AddCommand(cliCmd())

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	}

	return rootCmd.Execute()
}
