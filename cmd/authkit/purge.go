// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/authkit/internal/config"
)

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired credentials",
		Long:  `Delete every credential whose expiry has passed from the configured credential store.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPurge(cmd.Context(), cfg, cmd, AppDeps{})
		},
	}
}

func runPurge(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps AppDeps) error {
	a, err := newApp(ctx, cfg, slog.Default(), deps)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.credentials.PurgeExpired(ctx)
	if err != nil {
		return err //nolint:wrapcheck // credential errors are coded
	}
	cmd.Printf("Purged %d expired credential(s)\n", n)
	return nil
}
