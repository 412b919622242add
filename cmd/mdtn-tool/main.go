// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// mdtn-tool is the operator's swiss army knife: inspect stored bundle
// images, submit payloads through a running node's REST agent, query its
// counters and tail its delivery stream.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "mdtn-tool",
		Short:         "Inspect and drive mdtn nodes",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newShowCommand(),
		newSubmitCommand(),
		newStatusCommand(),
		newWatchCommand(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
