/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/timedimension/internal/models"
)

// ErrUnsupportedFormat is returned for an unknown export format.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Rendered is an encoded timeline ready to be stored.
type Rendered struct {
	Data        []byte
	ContentType string
	Extension   string
}

// ParseFormat reads an export format name. Empty text is JSON.
func ParseFormat(s string) (models.ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return models.ExportFormatJSON, nil
	case "csv":
		return models.ExportFormatCSV, nil
	case "ics", "ical":
		return models.ExportFormatICal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Render encodes the points of a timeline. now stamps the iCalendar output.
func Render(format models.ExportFormat, tl *models.Timeline, points []int64, now time.Time) (*Rendered, error) {
	switch format {
	case models.ExportFormatJSON:
		return renderJSON(tl, points)
	case models.ExportFormatCSV:
		return renderCSV(points)
	case models.ExportFormatICal:
		return renderICal(tl, points, now), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

type jsonDocument struct {
	TimelineID string  `json:"timeline_id"`
	Name       string  `json:"name"`
	Mode       string  `json:"mode"`
	Count      int     `json:"count"`
	Points     []int64 `json:"points"`
}

func renderJSON(tl *models.Timeline, points []int64) (*Rendered, error) {
	if points == nil {
		points = []int64{}
	}
	data, err := json.MarshalIndent(jsonDocument{
		TimelineID: tl.ID,
		Name:       tl.Name,
		Mode:       string(tl.Mode),
		Count:      len(points),
		Points:     points,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json export: %w", err)
	}
	return &Rendered{Data: data, ContentType: "application/json", Extension: "json"}, nil
}

func renderCSV(points []int64) (*Rendered, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"epoch_ms", "utc"}); err != nil {
		return nil, err
	}
	for _, p := range points {
		row := []string{strconv.FormatInt(p, 10), time.UnixMilli(p).UTC().Format(time.RFC3339Nano)}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode csv export: %w", err)
	}
	return &Rendered{Data: buf.Bytes(), ContentType: "text/csv; charset=utf-8", Extension: "csv"}, nil
}

// renderICal writes one VEVENT per point. Each event runs until the next
// point; the last one is instantaneous.
func renderICal(tl *models.Timeline, points []int64, now time.Time) *Rendered {
	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Friends Incode//Time Dimension Export//EN\r\n")
	buf.WriteString(fmt.Sprintf("X-WR-CALNAME:%s\r\n", escapeICalText(tl.Name)))
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	stamp := formatICalTime(now)
	for i, p := range points {
		start := time.UnixMilli(p)
		end := start
		if i+1 < len(points) {
			end = time.UnixMilli(points[i+1])
		}

		buf.WriteString("BEGIN:VEVENT\r\n")
		buf.WriteString(fmt.Sprintf("UID:%s-%d@timedimension\r\n", tl.ID, p))
		buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", stamp))
		buf.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICalTime(start)))
		buf.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICalTime(end)))
		buf.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICalText(tl.Name)))
		if tl.Description != "" {
			buf.WriteString(fmt.Sprintf("DESCRIPTION:%s\r\n", escapeICalText(tl.Description)))
		}
		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")
	return &Rendered{Data: buf.Bytes(), ContentType: "text/calendar; charset=utf-8", Extension: "ics"}
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "timeline"
	}
	return result.String()
}
