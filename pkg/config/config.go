// SPDX-License-Identifier: Apache-2.0

// Package config centralizes environment and flag-driven configuration for
// the engine binary, the way pgroll's cmd/flags package does for its own
// Postgres-only CLI.
package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	viper.SetEnvPrefix("DMENGINE")
	viper.AutomaticEnv()
}

// DatamodelLocation returns the path to the datamodel file passed via
// --datamodel_location.
func DatamodelLocation() string {
	return viper.GetString("DATAMODEL_LOCATION")
}

// SingleCmd reports whether the engine should read one command from stdin,
// execute it, and exit, instead of serving a persistent RPC loop.
func SingleCmd() bool {
	return viper.GetBool("SINGLE_CMD")
}

// Datasource returns the connection URL passed via --datasource.
func Datasource() string {
	return viper.GetString("DATASOURCE")
}

// ConnectTimeout is the default per-command connect timeout (§5), overridable
// via DMENGINE_CONNECT_TIMEOUT_MS.
func ConnectTimeout() time.Duration {
	ms := viper.GetInt("CONNECT_TIMEOUT_MS")
	if ms <= 0 {
		ms = 1500
	}
	return time.Duration(ms) * time.Millisecond
}

// RootFlags registers the top-level flags shared by every command:
// --datamodel_location, --single_cmd.
func RootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("datamodel_location", "", "Path to the datamodel file")
	cmd.PersistentFlags().Bool("single_cmd", false, "Read one command from stdin, execute it, and exit")

	viper.BindPFlag("DATAMODEL_LOCATION", cmd.PersistentFlags().Lookup("datamodel_location"))
	viper.BindPFlag("SINGLE_CMD", cmd.PersistentFlags().Lookup("single_cmd"))
}

// CliFlags registers the flags of the `cli` subcommand: --can_connect_to_database,
// --create_database, --datasource.
func CliFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("can_connect_to_database", false, "Check whether the engine can connect to the datasource and exit")
	cmd.Flags().Bool("create_database", false, "Create the database named in the datasource, if it does not exist, and exit")
	cmd.Flags().String("datasource", "", "Datasource connection URL")

	viper.BindPFlag("CAN_CONNECT_TO_DATABASE", cmd.Flags().Lookup("can_connect_to_database"))
	viper.BindPFlag("CREATE_DATABASE", cmd.Flags().Lookup("create_database"))
	viper.BindPFlag("DATASOURCE", cmd.Flags().Lookup("datasource"))
}

// CanConnectToDatabase reports whether --can_connect_to_database was passed.
func CanConnectToDatabase() bool { return viper.GetBool("CAN_CONNECT_TO_DATABASE") }

// CreateDatabase reports whether --create_database was passed.
func CreateDatabase() bool { return viper.GetBool("CREATE_DATABASE") }
