/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timestamp parses ISO-8601 date literals and converts between
// time.Time and epoch milliseconds, the canonical time point representation.
package timestamp

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnparseable is returned for text that is not a recognised date literal.
var ErrUnparseable = errors.New("unparseable date")

// Date-only forms are read as UTC midnight.
var utcLayouts = []string{
	"2006-01-02",
	"2006-01",
	"2006",
}

// Forms carrying their own offset ("Z" or "+hh:mm").
var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
}

// Date-times without an offset are read in the parser's location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Parser reads date literals. Location applies to date-times written without
// an offset; nil means time.Local.
type Parser struct {
	Location *time.Location
}

// Parse reads a date literal.
func (p Parser) Parse(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrUnparseable)
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range utcLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}

	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, text)
}

// Parse reads a date literal, interpreting offset-less date-times as local.
func Parse(text string) (time.Time, error) {
	return Parser{}.Parse(text)
}

// Milli returns t as epoch milliseconds.
func Milli(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMilli returns the UTC time for epoch milliseconds ms.
func FromMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Format renders epoch milliseconds as RFC 3339 with millisecond precision.
func Format(ms int64) string {
	return FromMilli(ms).Format("2006-01-02T15:04:05.000Z07:00")
}
