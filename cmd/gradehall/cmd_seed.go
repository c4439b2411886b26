/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/friendsincode/gradehall/internal/db"
	"github.com/friendsincode/gradehall/internal/models"
)

// Seed file layout. One file describes an academic year: its classes,
// teachers, and the weekly schedule template per class.

type seedFile struct {
	AcademicYear string        `yaml:"academic_year"`
	Active       bool          `yaml:"active"`
	Teachers     []seedTeacher `yaml:"teachers"`
	Classes      []seedClass   `yaml:"classes"`
}

type seedTeacher struct {
	Code  string `yaml:"code"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

type seedClass struct {
	Code     string      `yaml:"code"`
	Name     string      `yaml:"name"`
	Schedule []seedEntry `yaml:"schedule"`
}

type seedEntry struct {
	DayOfWeek   int    `yaml:"day_of_week"` // 1 = Monday .. 6 = Saturday
	PeriodLabel string `yaml:"period"`
	StartTime   string `yaml:"start"`
	EndTime     string `yaml:"end"`
	TeacherCode string `yaml:"teacher"`
	SubjectCode string `yaml:"subject"`
}

var (
	seedFilePath string
	seedDryRun   bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load classes, teachers, and schedule templates from a YAML file",
	Long: `Reads a YAML seed file and creates the academic year, teachers,
classes, and per-class weekly schedule templates it describes. Rows that
already exist (matched by code) are skipped, so re-running a seed file
is safe.

Examples:
  gradehall seed --file school-2024.yaml
  gradehall seed --file school-2024.yaml --dry-run`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFilePath, "file", "", "Path to the YAML seed file (required)")
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "Report what would be created without writing")
	seedCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	raw, err := os.ReadFile(seedFilePath)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	if seed.AcademicYear == "" {
		return fmt.Errorf("seed file must set academic_year")
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(database)

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	created := struct{ years, teachers, classes, entries int }{}

	err = database.Transaction(func(tx *gorm.DB) error {
		var year models.AcademicYear
		if err := tx.First(&year, "label = ?", seed.AcademicYear).Error; err != nil {
			year = models.AcademicYear{
				ID:     uuid.NewString(),
				Label:  seed.AcademicYear,
				Active: seed.Active,
			}
			if !seedDryRun {
				if err := tx.Create(&year).Error; err != nil {
					return fmt.Errorf("create academic year: %w", err)
				}
			}
			created.years++
		}

		for _, t := range seed.Teachers {
			var existing models.Teacher
			if err := tx.First(&existing, "code = ?", t.Code).Error; err == nil {
				continue
			}
			teacher := models.Teacher{
				ID:    uuid.NewString(),
				Code:  t.Code,
				Name:  t.Name,
				Email: t.Email,
			}
			if !seedDryRun {
				if err := tx.Create(&teacher).Error; err != nil {
					return fmt.Errorf("create teacher %s: %w", t.Code, err)
				}
			}
			created.teachers++
		}

		for _, c := range seed.Classes {
			var existing models.Class
			if err := tx.First(&existing, "code = ?", c.Code).Error; err != nil {
				class := models.Class{
					ID:           uuid.NewString(),
					Code:         c.Code,
					Name:         c.Name,
					AcademicYear: seed.AcademicYear,
				}
				if !seedDryRun {
					if err := tx.Create(&class).Error; err != nil {
						return fmt.Errorf("create class %s: %w", c.Code, err)
					}
				}
				created.classes++
			}

			for _, e := range c.Schedule {
				if e.DayOfWeek < 1 || e.DayOfWeek > 6 {
					return fmt.Errorf("class %s: day_of_week %d out of range 1..6", c.Code, e.DayOfWeek)
				}
				var count int64
				tx.Model(&models.ScheduleEntry{}).
					Where("class_code = ? AND academic_year = ? AND day_of_week = ? AND period_label = ?",
						c.Code, seed.AcademicYear, e.DayOfWeek, e.PeriodLabel).
					Count(&count)
				if count > 0 {
					continue
				}
				entry := models.ScheduleEntry{
					ID:           uuid.NewString(),
					ClassCode:    c.Code,
					AcademicYear: seed.AcademicYear,
					DayOfWeek:    e.DayOfWeek,
					PeriodLabel:  e.PeriodLabel,
					StartTime:    e.StartTime,
					EndTime:      e.EndTime,
					TeacherCode:  e.TeacherCode,
					SubjectCode:  e.SubjectCode,
				}
				if !seedDryRun {
					if err := tx.Create(&entry).Error; err != nil {
						return fmt.Errorf("create schedule entry %s/%s: %w", c.Code, e.PeriodLabel, err)
					}
				}
				created.entries++
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	logger.Info().
		Bool("dry_run", seedDryRun).
		Int("years", created.years).
		Int("teachers", created.teachers).
		Int("classes", created.classes).
		Int("schedule_entries", created.entries).
		Msg("seed complete")
	return nil
}
