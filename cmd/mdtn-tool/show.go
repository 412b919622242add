// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/dtn7/mdtn/pkg/bundle"
)

// shownBundle is the printable form of a bundle image.
type shownBundle struct {
	BundleID    string   `json:"bundle_id"`
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	Payload     string   `json:"payload"`
	CreatedAt   float64  `json:"created_at"`
	Lifetime    uint64   `json:"lifetime"`
	HopCount    uint64   `json:"hop_count"`
	Path        []string `json:"path"`
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show BUNDLE-FILE",
		Short: "Decode and print a stored bundle image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var b bundle.Bundle
			if err := b.UnmarshalCbor(f); err != nil {
				return err
			}

			path := make([]string, 0, len(b.Path))
			for _, eid := range b.Path {
				path = append(path, eid.String())
			}

			out, err := json.MarshalIndent(shownBundle{
				BundleID:    b.ID().String(),
				Source:      b.Source.String(),
				Destination: b.Destination.String(),
				Payload:     string(b.Payload),
				CreatedAt:   b.CreatedAt,
				Lifetime:    b.Lifetime,
				HopCount:    b.HopCount,
				Path:        path,
			}, "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(out))
			return nil
		},
	}
}
