/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package export renders resolved timelines to files in object storage.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/timedimension/internal/events"
	"github.com/friendsincode/timedimension/internal/models"
	"github.com/friendsincode/timedimension/internal/storage"
	"github.com/friendsincode/timedimension/internal/telemetry"
	"github.com/friendsincode/timedimension/internal/timeline"
)

// ErrExportNotFound indicates the export record does not exist.
var ErrExportNotFound = errors.New("export not found")

// Timelines is the part of the timeline service exports need.
type Timelines interface {
	GetTimeline(ctx context.Context, id string) (*models.Timeline, error)
	ResolveTimeline(ctx context.Context, id string) (*timeline.Result, error)
}

// Service writes timeline exports.
type Service struct {
	db        *gorm.DB
	timelines Timelines
	store     storage.ObjectStore
	bus       events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates an export service.
func NewService(db *gorm.DB, timelines Timelines, store storage.ObjectStore, bus events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		db:        db,
		timelines: timelines,
		store:     store,
		bus:       bus,
		logger:    logger.With().Str("component", "export").Logger(),
		now:       time.Now,
	}
}

// Create resolves a timeline, renders it in format, stores the file and
// records it.
func (s *Service) Create(ctx context.Context, timelineID string, format models.ExportFormat) (*models.Export, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanExport,
		telemetry.AttrTimelineID.String(timelineID),
		telemetry.AttrFormat.String(string(format)),
	)
	defer span.End()

	tl, err := s.timelines.GetTimeline(ctx, timelineID)
	if err != nil {
		return nil, telemetry.Fail(span, err)
	}
	res, err := s.timelines.ResolveTimeline(ctx, timelineID)
	if err != nil {
		return nil, telemetry.Fail(span, err)
	}

	now := s.now().UTC()
	rendered, err := Render(format, tl, res.Points, now)
	if err != nil {
		return nil, telemetry.Fail(span, err)
	}

	key := fmt.Sprintf("timelines/%s/%s-%s.%s", tl.ID, slugify(tl.Name), now.Format("20060102T150405Z"), rendered.Extension)
	if err := s.store.Put(ctx, key, rendered.Data, rendered.ContentType); err != nil {
		return nil, telemetry.Fail(span, fmt.Errorf("store export: %w", err))
	}

	record := &models.Export{
		ID:         uuid.NewString(),
		TimelineID: tl.ID,
		Format:     format,
		ObjectKey:  key,
		URL:        s.store.URL(key),
		Points:     len(res.Points),
		SizeBytes:  int64(len(rendered.Data)),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, telemetry.Fail(span, fmt.Errorf("record export: %w", err))
	}

	telemetry.ExportsTotal.WithLabelValues(string(format)).Inc()
	if s.bus != nil {
		s.bus.Publish(events.EventExportCreated, events.Payload{
			"export_id":   record.ID,
			"timeline_id": tl.ID,
			"format":      string(format),
			"url":         record.URL,
		})
	}

	s.logger.Info().
		Str("timeline_id", tl.ID).
		Str("format", string(format)).
		Str("key", key).
		Int("points", record.Points).
		Msg("timeline exported")
	return record, nil
}

// List returns the exports of a timeline, newest first.
func (s *Service) List(ctx context.Context, timelineID string) ([]models.Export, error) {
	var exports []models.Export
	if err := s.db.WithContext(ctx).
		Where("timeline_id = ?", timelineID).
		Order("created_at DESC").
		Find(&exports).Error; err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	return exports, nil
}

// Open loads an export record and its stored content.
func (s *Service) Open(ctx context.Context, exportID string) (*models.Export, []byte, error) {
	var record models.Export
	if err := s.db.WithContext(ctx).First(&record, "id = ?", exportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrExportNotFound
		}
		return nil, nil, fmt.Errorf("query export: %w", err)
	}

	data, err := s.store.Get(ctx, record.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrExportNotFound
		}
		return nil, nil, err
	}
	return &record, data, nil
}

// ContentType returns the MIME type stored exports of format are served with.
func ContentType(format models.ExportFormat) string {
	switch format {
	case models.ExportFormatCSV:
		return "text/csv; charset=utf-8"
	case models.ExportFormatICal:
		return "text/calendar; charset=utf-8"
	default:
		return "application/json"
	}
}
