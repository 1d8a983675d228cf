/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/friendsincode/timedimension/internal/models"
)

// Manifest is a YAML document of layers and the timelines built from them.
// Timelines reference layers by name.
//
//	layers:
//	  - name: office-hours
//	    interval: 2020-01-01T00:00Z/P1M
//	    period: PT1H
//	    window: "09:00/17:00"
//	timelines:
//	  - name: working-time
//	    mode: intersect
//	    layers: [office-hours]
type Manifest struct {
	Layers    []LayerInput       `yaml:"layers"`
	Timelines []TimelineManifest `yaml:"timelines"`
}

// TimelineManifest is a timeline entry of a Manifest.
type TimelineManifest struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Mode        string   `yaml:"mode,omitempty"`
	Layers      []string `yaml:"layers"`
}

// ImportReport counts what an import changed.
type ImportReport struct {
	LayersCreated    int `json:"layers_created"`
	LayersUpdated    int `json:"layers_updated"`
	TimelinesCreated int `json:"timelines_created"`
	TimelinesUpdated int `json:"timelines_updated"`
}

// LoadManifest decodes a manifest, rejecting unknown keys.
func LoadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return &m, nil
		}
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// Import creates or updates every layer and timeline of m, matching existing
// records by name. Layers are written first so timelines can refer to them.
func (s *Service) Import(ctx context.Context, m *Manifest) (ImportReport, error) {
	var report ImportReport
	layerIDs := make(map[string]string, len(m.Layers))

	for _, in := range m.Layers {
		name := strings.TrimSpace(in.Name)
		var existing models.Layer
		err := s.db.WithContext(ctx).Where("name = ?", name).First(&existing).Error
		switch {
		case err == nil:
			updated, err := s.UpdateLayer(ctx, existing.ID, in)
			if err != nil {
				return report, fmt.Errorf("layer %q: %w", name, err)
			}
			layerIDs[name] = updated.ID
			report.LayersUpdated++
		case errors.Is(err, gorm.ErrRecordNotFound):
			created, err := s.CreateLayer(ctx, in)
			if err != nil {
				return report, fmt.Errorf("layer %q: %w", name, err)
			}
			layerIDs[name] = created.ID
			report.LayersCreated++
		default:
			return report, fmt.Errorf("layer %q: %w", name, err)
		}
	}

	for _, tm := range m.Timelines {
		ids, err := s.layerIDsByName(ctx, tm.Layers, layerIDs)
		if err != nil {
			return report, fmt.Errorf("timeline %q: %w", tm.Name, err)
		}
		in := TimelineInput{Name: tm.Name, Description: tm.Description, Mode: tm.Mode, LayerIDs: ids}

		var existing models.Timeline
		err = s.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(tm.Name)).First(&existing).Error
		switch {
		case err == nil:
			if _, err := s.UpdateTimeline(ctx, existing.ID, in); err != nil {
				return report, fmt.Errorf("timeline %q: %w", tm.Name, err)
			}
			report.TimelinesUpdated++
		case errors.Is(err, gorm.ErrRecordNotFound):
			if _, err := s.CreateTimeline(ctx, in); err != nil {
				return report, fmt.Errorf("timeline %q: %w", tm.Name, err)
			}
			report.TimelinesCreated++
		default:
			return report, fmt.Errorf("timeline %q: %w", tm.Name, err)
		}
	}

	s.logger.Info().
		Int("layers_created", report.LayersCreated).
		Int("layers_updated", report.LayersUpdated).
		Int("timelines_created", report.TimelinesCreated).
		Int("timelines_updated", report.TimelinesUpdated).
		Msg("manifest imported")
	return report, nil
}

// layerIDsByName maps layer names to IDs, consulting layers imported in the
// same manifest before the database.
func (s *Service) layerIDsByName(ctx context.Context, names []string, known map[string]string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if id, ok := known[name]; ok {
			ids = append(ids, id)
			continue
		}
		var layer models.Layer
		if err := s.db.WithContext(ctx).Where("name = ?", name).First(&layer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, invalid("unknown layer %q", name)
			}
			return nil, err
		}
		ids = append(ids, layer.ID)
	}
	return ids, nil
}
