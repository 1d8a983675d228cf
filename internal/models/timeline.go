/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
)

// TimelineMode selects how a timeline combines its layers.
type TimelineMode string

const (
	TimelineModeUnion     TimelineMode = "union"
	TimelineModeIntersect TimelineMode = "intersect"
)

// Valid reports whether m is a known mode.
func (m TimelineMode) Valid() bool {
	return m == TimelineModeUnion || m == TimelineModeIntersect
}

// Timeline combines several layers into one sequence of time points.
type Timeline struct {
	ID          string       `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description,omitempty"`
	Mode        TimelineMode `gorm:"type:varchar(16);not null" json:"mode"`

	Layers []Layer `gorm:"many2many:timeline_layers;" json:"layers"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Timeline) TableName() string {
	return "timelines"
}

// NewTimeline creates a union timeline with a fresh ID.
func NewTimeline(name string) *Timeline {
	return &Timeline{
		ID:   uuid.NewString(),
		Name: name,
		Mode: TimelineModeUnion,
	}
}

// LayerIDs returns the IDs of the attached layers in order.
func (t *Timeline) LayerIDs() []string {
	ids := make([]string, 0, len(t.Layers))
	for _, l := range t.Layers {
		ids = append(ids, l.ID)
	}
	return ids
}

// ExportFormat enumerates the supported export renderings.
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatICal ExportFormat = "ics"
)

// Export records a rendered timeline written to object storage.
type Export struct {
	ID         string       `gorm:"type:uuid;primaryKey" json:"id"`
	TimelineID string       `gorm:"type:uuid;index;not null" json:"timeline_id"`
	Format     ExportFormat `gorm:"type:varchar(8);not null" json:"format"`
	ObjectKey  string       `gorm:"type:varchar(512);not null" json:"object_key"`
	URL        string       `gorm:"type:varchar(1024)" json:"url,omitempty"`
	Points     int          `json:"points"`
	SizeBytes  int64        `json:"size_bytes"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (Export) TableName() string {
	return "exports"
}
