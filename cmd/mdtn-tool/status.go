// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/dtn7/mdtn/pkg/agent"
)

func newStatusCommand() *cobra.Command {
	var api string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a node's identity and counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(fmt.Sprintf("http://%s/status", api))
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			var status agent.RestStatus
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return err
			}

			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&api, "api", "localhost:8080", "address of the node's REST agent")

	return cmd
}
