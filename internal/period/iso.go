/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package period

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrDurationParse matches every *ParseError via errors.Is.
var ErrDurationParse = errors.New("invalid ISO-8601 duration")

// ParseError reports text that does not follow the ISO-8601 duration grammar.
type ParseError struct {
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid ISO-8601 duration %q: %s", e.Text, e.Reason)
}

// Is makes errors.Is(err, ErrDurationParse) hold for any ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrDurationParse
}

// Parser turns duration text into a Duration.
type Parser interface {
	ParseDuration(text string) (Duration, error)
}

// ISOParser implements the PnYnMnWnDTnHnMnS grammar.
//
// Designators must appear in order and at most once. Only the last component
// may carry a fraction; it is carried exactly into the smaller fixed-length
// units (PT1.5H is PT1H30M, P1.5W is P1W3DT12H). Fractional years and months
// have no fixed length and are rejected. A fraction of a second is dropped.
type ISOParser struct{}

const numberPattern = `(\d+(?:[.,]\d+)?)`

var isoDurationPattern = regexp.MustCompile(`^([+-])?P` +
	`(?:` + numberPattern + `Y)?` +
	`(?:` + numberPattern + `M)?` +
	`(?:` + numberPattern + `W)?` +
	`(?:` + numberPattern + `D)?` +
	`(T` +
	`(?:` + numberPattern + `H)?` +
	`(?:` + numberPattern + `M)?` +
	`(?:` + numberPattern + `S)?` +
	`)?$`)

// submatch index for each Duration field.
var fieldGroups = [fieldCount]int{2, 3, 4, 5, 7, 8, 9}

// seconds per unit for the fixed-length fields, indexed like Duration.
var unitSeconds = [fieldCount]int64{0, 0, 7 * 86400, 86400, 3600, 60, 1}

// ParseDuration parses ISO-8601 duration text.
func (ISOParser) ParseDuration(text string) (Duration, error) {
	input := strings.ToUpper(strings.TrimSpace(text))
	if input == "" {
		return Duration{}, &ParseError{Text: text, Reason: "empty input"}
	}

	m := isoDurationPattern.FindStringSubmatch(input)
	if m == nil {
		return Duration{}, &ParseError{Text: text, Reason: "unexpected character or designator order"}
	}

	last := -1
	fractional := -1
	for field, group := range fieldGroups {
		if m[group] == "" {
			continue
		}
		if fractional >= 0 {
			return Duration{}, &ParseError{Text: text, Reason: "only the smallest component may have a fraction"}
		}
		last = field
		if strings.ContainsAny(m[group], ".,") {
			fractional = field
		}
	}
	if last < 0 {
		return Duration{}, &ParseError{Text: text, Reason: "no components"}
	}
	if m[6] != "" && m[7] == "" && m[8] == "" && m[9] == "" {
		return Duration{}, &ParseError{Text: text, Reason: "time designator without components"}
	}

	var d Duration
	for field, group := range fieldGroups {
		raw := m[group]
		if raw == "" {
			continue
		}
		whole, frac, _ := strings.Cut(strings.ReplaceAll(raw, ",", "."), ".")
		n, err := strconv.Atoi(whole)
		if err != nil {
			return Duration{}, &ParseError{Text: text, Reason: fmt.Sprintf("component %s out of range", raw)}
		}
		d[field] = n
		if frac == "" {
			continue
		}
		if field == Years || field == Months {
			return Duration{}, &ParseError{Text: text, Reason: "fractional years or months are not supported"}
		}
		f, err := strconv.ParseFloat("0."+frac, 64)
		if err != nil {
			return Duration{}, &ParseError{Text: text, Reason: fmt.Sprintf("component %s is not a number", raw)}
		}
		carryFraction(&d, field, f)
	}

	if m[1] == "-" {
		d = d.Negate()
	}
	return d, nil
}

// carryFraction spreads f units of field over the smaller fixed-length fields.
func carryFraction(d *Duration, field int, f float64) {
	rest := int64(math.Floor(f*float64(unitSeconds[field]) + 1e-6))
	for i := field + 1; i < fieldCount && rest > 0; i++ {
		d[i] += int(rest / unitSeconds[i])
		rest %= unitSeconds[i]
	}
}

// Codec exposes a Parser as the duration decoding capability of the module.
// Errors from the underlying Parser are returned unmodified.
type Codec struct {
	parser Parser
}

// NewCodec wraps p. A nil parser selects ISOParser.
func NewCodec(p Parser) *Codec {
	if p == nil {
		p = ISOParser{}
	}
	return &Codec{parser: p}
}

// Parse decodes duration text.
func (c *Codec) Parse(text string) (Duration, error) {
	return c.parser.ParseDuration(text)
}

// ParseDuration lets a Codec be used wherever a Parser is accepted.
func (c *Codec) ParseDuration(text string) (Duration, error) {
	return c.parser.ParseDuration(text)
}

var defaultCodec = NewCodec(nil)

// Parse decodes duration text with the ISO-8601 grammar.
func Parse(text string) (Duration, error) {
	return defaultCodec.Parse(text)
}

// MustParse is Parse for durations known to be valid. It panics on error.
func MustParse(text string) Duration {
	d, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return d
}
