/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/friendsincode/timedimension/internal/cache"
	"github.com/friendsincode/timedimension/internal/db"
	"github.com/friendsincode/timedimension/internal/events"
	"github.com/friendsincode/timedimension/internal/timeline"
)

var importCmd = &cobra.Command{
	Use:   "import <manifest.yaml>",
	Short: "Import layer and timeline definitions",
	Long:  "Create or update layers and timelines from a YAML manifest. Existing entries are matched by name.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var importDryRun bool

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate the manifest without writing to the database")
}

func runImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	manifest, err := timeline.LoadManifest(f)
	if err != nil {
		return err
	}

	if importDryRun {
		r := resolver()
		for _, layer := range manifest.Layers {
			if err := r.Validate(layer.Definition); err != nil {
				return fmt.Errorf("layer %q: %w", layer.Name, err)
			}
		}
		logger.Info().
			Int("layers", len(manifest.Layers)).
			Int("timelines", len(manifest.Timelines)).
			Msg("manifest is valid (dry run)")
		return printJSON(cmd.OutOrStdout(), map[string]int{
			"layers":    len(manifest.Layers),
			"timelines": len(manifest.Timelines),
		})
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close(database)

	// Evict what a running server may have cached for the imported entries.
	var resolutionCache *cache.Cache
	if cfg.CacheEnabled {
		if resolutionCache, err = cache.New(cache.ConfigFrom(cfg), logger); err != nil {
			return fmt.Errorf("initialize cache: %w", err)
		}
		defer resolutionCache.Close()
	}

	svc := timeline.NewService(database, resolver(), resolutionCache, events.NewBus(), logger)
	report, err := svc.Import(context.Background(), manifest)
	if err != nil {
		return err
	}

	logger.Info().
		Int("layers_created", report.LayersCreated).
		Int("layers_updated", report.LayersUpdated).
		Int("timelines_created", report.TimelinesCreated).
		Int("timelines_updated", report.TimelinesUpdated).
		Msg("import complete")
	return printJSON(cmd.OutOrStdout(), report)
}
