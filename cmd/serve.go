// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexusdm/dmengine/internal/connstr"
	"github.com/nexusdm/dmengine/pkg/config"
	"github.com/nexusdm/dmengine/pkg/dbconn"
	"github.com/nexusdm/dmengine/pkg/enginelog"
	"github.com/nexusdm/dmengine/pkg/rpcapi"
)

// runServe connects to the configured datasource and serves the JSON-RPC
// command loop over stdin/stdout, per §6's wire protocol. With --single_cmd
// it processes exactly one line and exits, rather than looping until stdin
// closes.
func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()

	datasource := config.Datasource()
	if datasource == "" {
		return fmt.Errorf("no datasource configured: set DMENGINE_DATASOURCE")
	}

	parsed, err := connstr.Parse(datasource)
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout())
	defer cancel()

	rdb, err := dbconn.Open(parsed.Dialect, parsed.DSN)
	if err != nil {
		return fmt.Errorf("connecting to datasource: %w", err)
	}
	defer rdb.Close()

	if err := rdb.SQL.PingContext(connectCtx); err != nil {
		return fmt.Errorf("connecting to datasource: %w", err)
	}

	logger := enginelog.NewLogger()
	if config.SingleCmd() {
		logger = enginelog.NewNoopLogger()
	}

	server, err := rpcapi.NewServer(ctx, rdb, parsed.Namespace, logger, Version)
	if err != nil {
		return err
	}

	if config.SingleCmd() {
		return server.ServeOnce(ctx, os.Stdin, os.Stdout)
	}
	return server.Serve(ctx, os.Stdin, os.Stdout)
}
