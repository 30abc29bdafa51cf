// Crosswire - cross-platform chat relay
// Bridges channel groups on Discord, Telegram and Slack, preserving
// reply relationships across the relay boundary.
// License: MIT
//
// Copyright (c) 2026 Crosswire contributors

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/crosswire/cmd/crosswire/internal"
	"github.com/tinyland-inc/crosswire/cmd/crosswire/internal/bridges"
	"github.com/tinyland-inc/crosswire/cmd/crosswire/internal/serve"
	"github.com/tinyland-inc/crosswire/cmd/crosswire/internal/version"
)

func NewCrosswireCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "crosswire",
		Short:   "crosswire - cross-platform chat bridge v" + internal.GetVersion(),
		Example: "crosswire serve",
	}

	cmd.AddCommand(
		serve.NewServeCommand(),
		bridges.NewBridgesCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewCrosswireCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
