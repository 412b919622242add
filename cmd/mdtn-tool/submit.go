// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/dtn7/mdtn/pkg/agent"
)

func newSubmitCommand() *cobra.Command {
	var (
		api      string
		lifetime uint64
	)

	cmd := &cobra.Command{
		Use:   "submit DESTINATION PAYLOAD",
		Short: "Submit a payload through a node's REST agent",
		Long: "Submit a payload through a node's REST agent.\n\n" +
			"PAYLOAD is used verbatim, read from a file when prefixed with @,\n" +
			"or read from stdin when given as a single dash.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				payload []byte
				err     error
			)

			switch arg := args[1]; {
			case arg == "-":
				payload, err = io.ReadAll(os.Stdin)
			case strings.HasPrefix(arg, "@"):
				payload, err = os.ReadFile(arg[1:])
			default:
				payload = []byte(arg)
			}
			if err != nil {
				return err
			}

			body, err := json.Marshal(agent.RestSubmitRequest{
				Destination: args[0],
				Payload:     string(payload),
				LifetimeS:   lifetime,
			})
			if err != nil {
				return err
			}

			resp, err := http.Post(
				fmt.Sprintf("http://%s/submit", api), "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			var submitResp agent.RestSubmitResponse
			if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
				return err
			}
			if submitResp.Error != "" {
				return fmt.Errorf("node refused submission: %s", submitResp.Error)
			}

			fmt.Println(submitResp.BundleID)
			return nil
		},
	}

	cmd.Flags().StringVar(&api, "api", "localhost:8080", "address of the node's REST agent")
	cmd.Flags().Uint64Var(&lifetime, "lifetime", 0, "lifetime in seconds, 0 for the node's default")

	return cmd
}
