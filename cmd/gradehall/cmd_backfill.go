/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/gradehall/internal/db"
	"github.com/friendsincode/gradehall/internal/models"
	"github.com/friendsincode/gradehall/internal/scheduler"
	"github.com/friendsincode/gradehall/internal/scheduler/state"
	"github.com/friendsincode/gradehall/internal/slot"
)

// Backfill flags
var (
	backfillYear  string
	backfillClass string
	backfillDays  int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Materialize calendar days from schedule templates",
	Long: `Runs the calendar materializer once, outside of the server process,
creating any missing calendar days from the weekly schedule templates.
Existing days are never overwritten, so applied exam and holiday plans
survive a backfill.

Useful after seeding a new academic year or raising the lookahead.

Examples:
  gradehall backfill --year 2024-2025
  gradehall backfill --year 2024-2025 --class 242508001 --days 60`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillYear, "year", "", "Academic year label (default: the active year)")
	backfillCmd.Flags().StringVar(&backfillClass, "class", "", "Limit to a single class code")
	backfillCmd.Flags().IntVar(&backfillDays, "days", 0, "Lookahead in days (default: the configured lookahead)")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(database)

	year := backfillYear
	if year == "" {
		var active models.AcademicYear
		if err := database.First(&active, "active = ?", true).Error; err != nil {
			return fmt.Errorf("no active academic year, pass --year")
		}
		year = active.Label
	}

	lookahead := cfg.SchedulerLookahead
	if backfillDays > 0 {
		lookahead = time.Duration(backfillDays) * 24 * time.Hour
	}

	codec := slot.NewCodec(cfg.LunchStart, cfg.LunchEnd)
	materializer := scheduler.New(database, codec, state.NewStore(), lookahead, cfg.SchedulerInterval, logger)

	var classes []models.Class
	query := database.Where("academic_year = ?", year)
	if backfillClass != "" {
		query = query.Where("code = ?", backfillClass)
	}
	if err := query.Find(&classes).Error; err != nil {
		return fmt.Errorf("list classes: %w", err)
	}
	if len(classes) == 0 {
		return fmt.Errorf("no classes found for year %s", year)
	}

	ctx := context.Background()
	failed := 0
	for _, class := range classes {
		if err := materializer.MaterializeClass(ctx, class.Code, year); err != nil {
			logger.Error().Err(err).Str("class", class.Code).Msg("backfill failed for class")
			failed++
		}
	}

	logger.Info().
		Str("year", year).
		Int("classes", len(classes)).
		Int("failed", failed).
		Msg("backfill complete")
	if failed > 0 {
		return fmt.Errorf("backfill failed for %d of %d classes", failed, len(classes))
	}
	return nil
}
