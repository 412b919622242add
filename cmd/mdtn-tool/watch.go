// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"os/signal"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/dtn7/mdtn/pkg/storage"
)

func newWatchCommand() *cobra.Command {
	var api string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail a node's delivery records as line-delimited JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := websocket.DefaultDialer.Dial(
				fmt.Sprintf("ws://%s/deliveries/ws", api), nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)
			go func() {
				<-interrupt
				_ = conn.Close()
			}()

			for {
				var rec storage.DeliveryRecord
				if err := conn.ReadJSON(&rec); err != nil {
					return nil
				}

				line, err := json.Marshal(rec)
				if err != nil {
					return err
				}
				fmt.Println(string(line))
			}
		},
	}

	cmd.Flags().StringVar(&api, "api", "localhost:8080", "address of the node's REST agent")

	return cmd
}
