/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/timedimension/internal/cache"
	"github.com/friendsincode/timedimension/internal/events"
	"github.com/friendsincode/timedimension/internal/models"
	"github.com/friendsincode/timedimension/internal/sequence"
	"github.com/friendsincode/timedimension/internal/telemetry"
	"github.com/friendsincode/timedimension/internal/timeexpr"
)

var (
	// ErrLayerNotFound indicates the layer does not exist.
	ErrLayerNotFound = errors.New("layer not found")

	// ErrTimelineNotFound indicates the timeline does not exist.
	ErrTimelineNotFound = errors.New("timeline not found")

	// ErrNameTaken indicates another layer or timeline already uses the name.
	ErrNameTaken = errors.New("name already in use")

	// ErrInvalidInput wraps every validation failure.
	ErrInvalidInput = errors.New("invalid input")
)

// LayerInput carries the writable fields of a layer.
type LayerInput struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Definition  `yaml:",inline"`
	Enabled     *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// TimelineInput carries the writable fields of a timeline.
type TimelineInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	LayerIDs    []string `json:"layer_ids"`
}

// Result is a resolved layer or timeline.
type Result struct {
	ID            string               `json:"id"`
	Points        []int64              `json:"points"`
	Rejected      []timeexpr.Rejection `json:"rejected,omitempty"`
	RejectedCount int                  `json:"rejected_count"`
	Cached        bool                 `json:"cached"`
	ResolvedAt    time.Time            `json:"resolved_at"`
}

// Service manages layers and timelines and resolves them to time points.
type Service struct {
	db       *gorm.DB
	resolver Resolver
	cache    *cache.Cache
	bus      events.Publisher
	logger   zerolog.Logger
}

// NewService creates a timeline service. c may be nil to run uncached.
func NewService(db *gorm.DB, resolver Resolver, c *cache.Cache, bus events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		resolver: resolver,
		cache:    c,
		bus:      bus,
		logger:   logger.With().Str("component", "timeline").Logger(),
	}
}

// Resolver returns the resolver used for layer definitions.
func (s *Service) Resolver() Resolver {
	return s.resolver
}

func (s *Service) publish(eventType events.EventType, payload events.Payload) {
	if s.bus != nil {
		s.bus.Publish(eventType, payload)
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (s *Service) ensureUniqueName(ctx context.Context, model any, name, excludeID string) error {
	q := s.db.WithContext(ctx).Model(model).Where("name = ?", name)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("check name: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %q", ErrNameTaken, name)
	}
	return nil
}

func (s *Service) validateLayer(ctx context.Context, in LayerInput, excludeID string) (string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", invalid("name is required")
	}
	if err := s.resolver.Validate(in.Definition); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.ensureUniqueName(ctx, &models.Layer{}, name, excludeID); err != nil {
		return "", err
	}
	return name, nil
}

func applyLayerInput(l *models.Layer, name string, in LayerInput) {
	l.Name = name
	l.Description = in.Description
	l.Times = strings.TrimSpace(in.Times)
	l.Interval = strings.TrimSpace(in.Interval)
	l.Period = strings.TrimSpace(in.Period)
	l.Window = strings.TrimSpace(in.Window)
	if in.Enabled != nil {
		l.Enabled = *in.Enabled
	}
}

// CreateLayer validates the definition by resolving it once and stores it.
func (s *Service) CreateLayer(ctx context.Context, in LayerInput) (*models.Layer, error) {
	name, err := s.validateLayer(ctx, in, "")
	if err != nil {
		return nil, err
	}

	layer := models.NewLayer(name)
	applyLayerInput(layer, name, in)
	if err := s.db.WithContext(ctx).Create(layer).Error; err != nil {
		return nil, fmt.Errorf("create layer: %w", err)
	}

	s.publish(events.EventLayerCreated, events.Payload{"layer_id": layer.ID, "name": layer.Name})
	s.logger.Info().Str("layer_id", layer.ID).Str("name", layer.Name).Str("kind", string(layer.Kind())).Msg("layer created")
	return layer, nil
}

// GetLayer loads a layer by ID.
func (s *Service) GetLayer(ctx context.Context, id string) (*models.Layer, error) {
	var layer models.Layer
	if err := s.db.WithContext(ctx).First(&layer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLayerNotFound
		}
		return nil, fmt.Errorf("query layer: %w", err)
	}
	return &layer, nil
}

// ListLayers returns all layers ordered by name.
func (s *Service) ListLayers(ctx context.Context) ([]models.Layer, error) {
	var layers []models.Layer
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&layers).Error; err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	return layers, nil
}

// UpdateLayer replaces the definition of a layer. A nil Enabled keeps the
// current state.
func (s *Service) UpdateLayer(ctx context.Context, id string, in LayerInput) (*models.Layer, error) {
	layer, err := s.GetLayer(ctx, id)
	if err != nil {
		return nil, err
	}
	name, err := s.validateLayer(ctx, in, id)
	if err != nil {
		return nil, err
	}

	applyLayerInput(layer, name, in)
	if err := s.db.WithContext(ctx).Save(layer).Error; err != nil {
		return nil, fmt.Errorf("update layer: %w", err)
	}

	s.invalidateLayer(ctx, id)
	s.publish(events.EventLayerUpdated, events.Payload{"layer_id": layer.ID, "name": layer.Name})
	s.logger.Info().Str("layer_id", layer.ID).Msg("layer updated")
	return layer, nil
}

// DeleteLayer removes a layer and detaches it from every timeline.
func (s *Service) DeleteLayer(ctx context.Context, id string) error {
	layer, err := s.GetLayer(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM timeline_layers WHERE layer_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(layer).Error
	})
	if err != nil {
		return fmt.Errorf("delete layer: %w", err)
	}

	s.invalidateLayer(ctx, id)
	s.publish(events.EventLayerDeleted, events.Payload{"layer_id": id, "name": layer.Name})
	s.logger.Info().Str("layer_id", id).Msg("layer deleted")
	return nil
}

func (s *Service) invalidateLayer(ctx context.Context, id string) {
	if err := s.cache.InvalidateLayer(ctx, id); err != nil {
		s.logger.Debug().Err(err).Str("layer_id", id).Msg("layer cache invalidation failed")
	}
	// Any timeline may include the layer.
	if err := s.cache.InvalidateTimelines(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("timeline cache invalidation failed")
	}
}

// ResolveLayer expands a layer into its time points.
func (s *Service) ResolveLayer(ctx context.Context, id string) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanResolveLayer, telemetry.AttrLayerID.String(id))
	defer span.End()

	layer, err := s.GetLayer(ctx, id)
	if err != nil {
		return nil, telemetry.Fail(span, err)
	}
	res, err := s.resolveLayer(ctx, layer)
	if err != nil {
		return nil, telemetry.Fail(span, err)
	}
	telemetry.RecordResolution(span, len(res.Points), res.RejectedCount, res.Cached)
	return res, nil
}

func (s *Service) resolveLayer(ctx context.Context, layer *models.Layer) (*Result, error) {
	if seq, ok := s.cache.GetLayer(ctx, layer.ID, layer.Revision()); ok {
		return &Result{
			ID:            layer.ID,
			Points:        seq.Points,
			RejectedCount: seq.Rejected,
			Cached:        true,
			ResolvedAt:    seq.ResolvedAt,
		}, nil
	}

	def := DefinitionOf(layer)
	_, span := telemetry.StartSpan(ctx, telemetry.SpanExpand, telemetry.ExpandAttributes(def.Kind(), def.Period, def.Window)...)
	res, err := s.resolver.Resolve(def)
	if err != nil {
		err = telemetry.Fail(span, fmt.Errorf("resolve layer %q: %w", layer.Name, err))
		span.End()
		return nil, err
	}
	telemetry.RecordResolution(span, len(res.Points), len(res.Rejected), false)
	span.End()

	out := &Result{
		ID:            layer.ID,
		Points:        res.Points,
		Rejected:      res.Rejected,
		RejectedCount: len(res.Rejected),
		ResolvedAt:    time.Now().UTC(),
	}
	if err := s.cache.SetLayer(ctx, layer.ID, layer.Revision(), &cache.Sequence{
		Points:     out.Points,
		Rejected:   out.RejectedCount,
		ResolvedAt: out.ResolvedAt,
	}); err != nil {
		s.logger.Debug().Err(err).Str("layer_id", layer.ID).Msg("layer cache write failed")
	}
	return out, nil
}

func (s *Service) loadLayers(ctx context.Context, ids []string) ([]models.Layer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var layers []models.Layer
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&layers).Error; err != nil {
		return nil, fmt.Errorf("load layers: %w", err)
	}

	found := make(map[string]bool, len(layers))
	for _, l := range layers {
		found[l.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, invalid("unknown layer %q", id)
		}
	}
	return layers, nil
}

func (s *Service) validateTimeline(ctx context.Context, in TimelineInput, excludeID string) (string, models.TimelineMode, []models.Layer, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", "", nil, invalid("name is required")
	}
	mode, err := sequence.ParseMode(in.Mode)
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	layers, err := s.loadLayers(ctx, in.LayerIDs)
	if err != nil {
		return "", "", nil, err
	}
	if err := s.ensureUniqueName(ctx, &models.Timeline{}, name, excludeID); err != nil {
		return "", "", nil, err
	}
	return name, models.TimelineMode(mode), layers, nil
}

// CreateTimeline stores a timeline over existing layers. An empty mode is union.
func (s *Service) CreateTimeline(ctx context.Context, in TimelineInput) (*models.Timeline, error) {
	name, mode, layers, err := s.validateTimeline(ctx, in, "")
	if err != nil {
		return nil, err
	}

	tl := models.NewTimeline(name)
	tl.Description = in.Description
	tl.Mode = mode

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Layers").Create(tl).Error; err != nil {
			return err
		}
		if len(layers) == 0 {
			return nil
		}
		return tx.Model(tl).Association("Layers").Replace(layers)
	})
	if err != nil {
		return nil, fmt.Errorf("create timeline: %w", err)
	}
	tl.Layers = layers

	s.publish(events.EventTimelineCreated, events.Payload{"timeline_id": tl.ID, "name": tl.Name})
	s.logger.Info().Str("timeline_id", tl.ID).Str("mode", string(tl.Mode)).Int("layers", len(layers)).Msg("timeline created")
	return tl, nil
}

// GetTimeline loads a timeline with its layers.
func (s *Service) GetTimeline(ctx context.Context, id string) (*models.Timeline, error) {
	var tl models.Timeline
	if err := s.db.WithContext(ctx).Preload("Layers").First(&tl, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTimelineNotFound
		}
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	return &tl, nil
}

// ListTimelines returns all timelines with their layers, ordered by name.
func (s *Service) ListTimelines(ctx context.Context) ([]models.Timeline, error) {
	var timelines []models.Timeline
	if err := s.db.WithContext(ctx).Preload("Layers").Order("name ASC").Find(&timelines).Error; err != nil {
		return nil, fmt.Errorf("list timelines: %w", err)
	}
	return timelines, nil
}

// UpdateTimeline replaces the name, mode and layer set of a timeline.
func (s *Service) UpdateTimeline(ctx context.Context, id string, in TimelineInput) (*models.Timeline, error) {
	tl, err := s.GetTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	name, mode, layers, err := s.validateTimeline(ctx, in, id)
	if err != nil {
		return nil, err
	}

	tl.Name = name
	tl.Description = in.Description
	tl.Mode = mode

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Layers").Save(tl).Error; err != nil {
			return err
		}
		if len(layers) == 0 {
			return tx.Model(tl).Association("Layers").Clear()
		}
		return tx.Model(tl).Association("Layers").Replace(layers)
	})
	if err != nil {
		return nil, fmt.Errorf("update timeline: %w", err)
	}
	tl.Layers = layers

	if err := s.cache.InvalidateTimeline(ctx, id); err != nil {
		s.logger.Debug().Err(err).Str("timeline_id", id).Msg("timeline cache invalidation failed")
	}
	s.publish(events.EventTimelineUpdated, events.Payload{"timeline_id": tl.ID, "name": tl.Name})
	s.logger.Info().Str("timeline_id", tl.ID).Msg("timeline updated")
	return tl, nil
}

// DeleteTimeline removes a timeline. Its layers are kept.
func (s *Service) DeleteTimeline(ctx context.Context, id string) error {
	tl, err := s.GetTimeline(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(tl).Association("Layers").Clear(); err != nil {
			return err
		}
		if err := tx.Where("timeline_id = ?", id).Delete(&models.Export{}).Error; err != nil {
			return err
		}
		return tx.Delete(tl).Error
	})
	if err != nil {
		return fmt.Errorf("delete timeline: %w", err)
	}

	if err := s.cache.InvalidateTimeline(ctx, id); err != nil {
		s.logger.Debug().Err(err).Str("timeline_id", id).Msg("timeline cache invalidation failed")
	}
	s.publish(events.EventTimelineDeleted, events.Payload{"timeline_id": id, "name": tl.Name})
	s.logger.Info().Str("timeline_id", id).Msg("timeline deleted")
	return nil
}

// ResolveTimeline combines the points of the enabled layers with the
// timeline's mode. The result is ascending without duplicates.
func (s *Service) ResolveTimeline(ctx context.Context, id string) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanResolveTimeline, telemetry.AttrTimelineID.String(id))
	defer span.End()

	tl, err := s.GetTimeline(ctx, id)
	if err != nil {
		return nil, telemetry.Fail(span, err)
	}
	span.SetAttributes(telemetry.AttrMode.String(string(tl.Mode)))

	if seq, ok := s.cache.GetTimeline(ctx, id); ok {
		telemetry.RecordResolution(span, len(seq.Points), seq.Rejected, true)
		return &Result{
			ID:            id,
			Points:        seq.Points,
			RejectedCount: seq.Rejected,
			Cached:        true,
			ResolvedAt:    seq.ResolvedAt,
		}, nil
	}

	start := time.Now()
	res, err := s.combine(ctx, tl)
	telemetry.ResolveDuration.WithLabelValues("timeline").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, telemetry.Fail(span, err)
	}

	if err := s.cache.SetTimeline(ctx, id, &cache.Sequence{
		Points:     res.Points,
		Rejected:   res.RejectedCount,
		ResolvedAt: res.ResolvedAt,
	}); err != nil {
		s.logger.Debug().Err(err).Str("timeline_id", id).Msg("timeline cache write failed")
	}

	telemetry.RecordResolution(span, len(res.Points), res.RejectedCount, false)
	s.publish(events.EventTimelineResolved, events.Payload{"timeline_id": id, "points": len(res.Points)})
	return res, nil
}

func (s *Service) combine(ctx context.Context, tl *models.Timeline) (*Result, error) {
	mode, err := sequence.ParseMode(string(tl.Mode))
	if err != nil {
		return nil, err
	}

	res := &Result{ID: tl.ID}
	seqs := make([][]int64, 0, len(tl.Layers))
	for i := range tl.Layers {
		layer := &tl.Layers[i]
		if !layer.Enabled {
			continue
		}
		lr, err := s.resolveLayer(ctx, layer)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, sequence.Dedupe(lr.Points))
		res.Rejected = append(res.Rejected, lr.Rejected...)
		res.RejectedCount += lr.RejectedCount
	}

	points, err := sequence.Combine(mode, seqs...)
	if err != nil {
		return nil, err
	}
	res.Points = sequence.Dedupe(points)
	res.ResolvedAt = time.Now().UTC()
	return res, nil
}

// WatchInvalidations drops cached timelines when layers or timelines change,
// including changes announced by other instances over the event bus. It
// blocks until ctx is done.
func (s *Service) WatchInvalidations(ctx context.Context) {
	if s.bus == nil {
		return
	}
	layerUpdated := s.bus.Subscribe(events.EventLayerUpdated)
	layerDeleted := s.bus.Subscribe(events.EventLayerDeleted)
	timelineUpdated := s.bus.Subscribe(events.EventTimelineUpdated)
	timelineDeleted := s.bus.Subscribe(events.EventTimelineDeleted)
	defer func() {
		s.bus.Unsubscribe(events.EventLayerUpdated, layerUpdated)
		s.bus.Unsubscribe(events.EventLayerDeleted, layerDeleted)
		s.bus.Unsubscribe(events.EventTimelineUpdated, timelineUpdated)
		s.bus.Unsubscribe(events.EventTimelineDeleted, timelineDeleted)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-layerUpdated:
			s.dropLayer(ctx, payload)
		case payload := <-layerDeleted:
			s.dropLayer(ctx, payload)
		case payload := <-timelineUpdated:
			s.dropTimeline(ctx, payload)
		case payload := <-timelineDeleted:
			s.dropTimeline(ctx, payload)
		}
	}
}

func (s *Service) dropLayer(ctx context.Context, payload events.Payload) {
	if id, ok := payload["layer_id"].(string); ok {
		s.invalidateLayer(ctx, id)
	}
}

func (s *Service) dropTimeline(ctx context.Context, payload events.Payload) {
	id, ok := payload["timeline_id"].(string)
	if !ok {
		return
	}
	if err := s.cache.InvalidateTimeline(ctx, id); err != nil {
		s.logger.Debug().Err(err).Str("timeline_id", id).Msg("timeline cache invalidation failed")
	}
}
