/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/friendsincode/gradehall/internal/db"
	"github.com/friendsincode/gradehall/internal/models"
)

var migrateSkipAdmin bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and bootstrap the admin account",
	Long: `Creates or updates all database tables, then ensures the bootstrap
admin account exists. The admin credentials come from
GRADEHALL_ADMIN_EMAIL and GRADEHALL_ADMIN_PASSWORD; bootstrap is
skipped when no password is configured or --skip-admin is given.

Examples:
  gradehall migrate
  gradehall migrate --skip-admin`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSkipAdmin, "skip-admin", false, "Do not create the bootstrap admin account")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(database)

	logger.Info().Msg("applying database schema")
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if migrateSkipAdmin || cfg.AdminPassword == "" {
		logger.Info().Msg("migration complete, admin bootstrap skipped")
		return nil
	}

	if err := ensureAdmin(database, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}

	logger.Info().Msg("migration complete")
	return nil
}

// ensureAdmin creates the admin user if no user exists for the configured
// email. An existing account is left untouched, password included.
func ensureAdmin(database *gorm.DB, email, password string) error {
	var existing models.User
	err := database.First(&existing, "email = ?", email).Error
	if err == nil {
		logger.Info().Str("email", email).Msg("admin account already exists")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("look up admin account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  string(hash),
		Role:      models.RoleAdmin,
		CreatedAt: time.Now().UTC(),
	}
	if err := database.Create(&admin).Error; err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}

	logger.Info().Str("email", email).Msg("bootstrap admin account created")
	return nil
}
