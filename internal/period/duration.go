/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package period models ISO-8601 durations as positional calendar field tuples
// and parses them from text.
package period

import (
	"strconv"
	"strings"
)

// Field indexes into a Duration. The order is fixed.
const (
	Years = iota
	Months
	Weeks
	Days
	Hours
	Minutes
	Seconds

	fieldCount
)

// Duration is a calendar duration: years, months, weeks, days, hours,
// minutes and seconds, in that order. Zero fields are no-ops when applied.
type Duration [fieldCount]int

// FromFields builds a Duration from up to seven positional values. Missing
// trailing fields are zero; values beyond the seventh are ignored.
func FromFields(values ...int) Duration {
	var d Duration
	copy(d[:], values)
	return d
}

// IsZero reports whether every field is zero.
func (d Duration) IsZero() bool {
	return d == Duration{}
}

// Negate flips the sign of every field.
func (d Duration) Negate() Duration {
	var out Duration
	for i, v := range d {
		out[i] = -v
	}
	return out
}

// Fields returns the tuple as a slice.
func (d Duration) Fields() []int {
	out := make([]int, fieldCount)
	copy(out, d[:])
	return out
}

var designators = [fieldCount]byte{'Y', 'M', 'W', 'D', 'H', 'M', 'S'}

// String renders the duration in ISO-8601 form, e.g. "P1DT12H". A duration
// whose fields are all zero or negative is rendered with a leading minus.
// Mixed signs are rendered per field ("P1Y-2M"), which ParseDuration rejects.
func (d Duration) String() string {
	if d.IsZero() {
		return "PT0S"
	}

	negative := true
	for _, v := range d {
		if v > 0 {
			negative = false
			break
		}
	}
	if negative {
		return "-" + d.Negate().String()
	}

	var b strings.Builder
	b.WriteByte('P')
	for i := Years; i <= Days; i++ {
		if d[i] != 0 {
			b.WriteString(strconv.Itoa(d[i]))
			b.WriteByte(designators[i])
		}
	}
	if d[Hours] != 0 || d[Minutes] != 0 || d[Seconds] != 0 {
		b.WriteByte('T')
		for i := Hours; i <= Seconds; i++ {
			if d[i] != 0 {
				b.WriteString(strconv.Itoa(d[i]))
				b.WriteByte(designators[i])
			}
		}
	}
	return b.String()
}
