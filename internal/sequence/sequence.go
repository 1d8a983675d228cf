/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sequence implements set operations over ascending sequences.
//
// Intersect and Union expect sorted, duplicate-free input and do not check
// it. No function modifies its arguments.
package sequence

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Intersect returns the values present in both a and b.
func Intersect[T cmp.Ordered](a, b []T) []T {
	out := make([]T, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// Union merges a and b, emitting values present in both once.
func Union[T cmp.Ordered](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// Dedupe returns a sorted copy of a with repeated values removed.
func Dedupe[T cmp.Ordered](a []T) []T {
	out := slices.Clone(a)
	if out == nil {
		out = []T{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// IsSorted reports whether a is strictly ascending.
func IsSorted[T cmp.Ordered](a []T) bool {
	for i := 1; i < len(a); i++ {
		if !(a[i-1] < a[i]) {
			return false
		}
	}
	return true
}

// Mode selects how Combine folds sequences together.
type Mode string

const (
	ModeUnion     Mode = "union"
	ModeIntersect Mode = "intersect"
)

// ParseMode reads "union" or "intersect". Empty text is ModeUnion.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeUnion:
		return ModeUnion, nil
	case ModeIntersect:
		return ModeIntersect, nil
	default:
		return "", fmt.Errorf("unknown sequence mode %q", s)
	}
}

// Combine folds seqs left to right with mode. No sequences yields an empty
// result; a single sequence is returned as a copy.
func Combine[T cmp.Ordered](mode Mode, seqs ...[]T) ([]T, error) {
	if mode != ModeUnion && mode != ModeIntersect {
		return nil, fmt.Errorf("unknown sequence mode %q", mode)
	}
	if len(seqs) == 0 {
		return []T{}, nil
	}

	out := slices.Clone(seqs[0])
	if out == nil {
		out = []T{}
	}
	for _, s := range seqs[1:] {
		if mode == ModeIntersect {
			out = Intersect(out, s)
		} else {
			out = Union(out, s)
		}
	}
	return out, nil
}
