/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LayerKind says how a layer defines its time points.
type LayerKind string

const (
	LayerKindTimes    LayerKind = "times"    // explicit times expression
	LayerKindInterval LayerKind = "interval" // interval + period (+ window) grid
)

// Layer is one time-indexed data source. It carries either a times
// expression or an interval that is expanded at Period steps.
type Layer struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Times       string `gorm:"type:text" json:"times,omitempty"`             // e.g. "2020-01-01,2020-02-01/2020-03-01/P1W"
	Interval    string `gorm:"type:varchar(255)" json:"interval,omitempty"` // e.g. "2020-01-01T00:00Z/P2D"
	Period      string `gorm:"type:varchar(64)" json:"period,omitempty"`    // grid step for Interval; empty uses the default period
	Window      string `gorm:"type:varchar(16)" json:"window,omitempty"`    // "HH:MM/HH:MM", applies to grids
	Enabled     bool   `gorm:"not null" json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Layer) TableName() string {
	return "layers"
}

// NewLayer creates an enabled layer with a fresh ID.
func NewLayer(name string) *Layer {
	return &Layer{
		ID:      uuid.NewString(),
		Name:    name,
		Enabled: true,
	}
}

// Kind reports whether the layer is times or interval based.
func (l *Layer) Kind() LayerKind {
	if strings.TrimSpace(l.Times) != "" {
		return LayerKindTimes
	}
	return LayerKindInterval
}

// Revision identifies the layer definition a cached resolution belongs to.
func (l *Layer) Revision() int64 {
	return l.UpdatedAt.UnixNano()
}
