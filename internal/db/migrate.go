/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/timedimension/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Layer{},
		&models.Timeline{},
		&models.Export{},
	); err != nil {
		return err
	}

	if err := normalizeTimelineModes(database); err != nil {
		return err
	}
	return nil
}

// normalizeTimelineModes lowercases modes written by hand or by older imports
// and falls back to union for anything unknown.
func normalizeTimelineModes(database *gorm.DB) error {
	if err := database.Exec("UPDATE timelines SET mode = LOWER(mode)").Error; err != nil {
		return fmt.Errorf("normalize timeline modes: %w", err)
	}
	if err := database.Exec(
		"UPDATE timelines SET mode = ? WHERE mode NOT IN (?, ?)",
		models.TimelineModeUnion, models.TimelineModeUnion, models.TimelineModeIntersect,
	).Error; err != nil {
		return fmt.Errorf("normalize timeline modes: %w", err)
	}
	return nil
}
