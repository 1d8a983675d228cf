package timeline

import (
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/timedimension/internal/clock"
	"github.com/friendsincode/timedimension/internal/period"
	"github.com/friendsincode/timedimension/internal/timestamp"
)

func utcResolver() Resolver {
	return Resolver{Dates: timestamp.Parser{Location: time.UTC}}
}

func jan(d, h int) int64 {
	return time.Date(2020, 1, d, h, 0, 0, 0, time.UTC).UnixMilli()
}

func samePoints(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestResolveDefinitions(t *testing.T) {
	twelveHours := utcResolver()
	twelveHours.DefaultPeriod = period.MustParse("PT12H")

	tests := []struct {
		name     string
		resolver Resolver
		def      Definition
		want     []int64
	}{
		{
			name:     "times expression",
			resolver: utcResolver(),
			def:      Definition{Times: "2020-01-01,2020-01-02/2020-01-04/P1D"},
			want:     []int64{jan(1, 0), jan(2, 0), jan(3, 0), jan(4, 0)},
		},
		{
			name:     "interval uses P1D without a period",
			resolver: utcResolver(),
			def:      Definition{Interval: "2020-01-01T00:00Z/P2D"},
			want:     []int64{jan(1, 0), jan(2, 0), jan(3, 0)},
		},
		{
			name:     "interval uses the resolver default period",
			resolver: twelveHours,
			def:      Definition{Interval: "2020-01-01/2020-01-02"},
			want:     []int64{jan(1, 0), jan(1, 12), jan(2, 0)},
		},
		{
			name:     "explicit period wins over the default",
			resolver: twelveHours,
			def:      Definition{Interval: "2020-01-01/2020-01-02", Period: "PT8H"},
			want:     []int64{jan(1, 0), jan(1, 8), jan(1, 16), jan(2, 0)},
		},
		{
			name:     "three part interval",
			resolver: utcResolver(),
			def:      Definition{Interval: "2020-01-01/2020-01-02/PT6H"},
			want:     []int64{jan(1, 0), jan(1, 6), jan(1, 12), jan(1, 18), jan(2, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.resolver.Resolve(tt.def)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !samePoints(res.Points, tt.want) {
				t.Fatalf("points = %v, want %v", res.Points, tt.want)
			}
		})
	}
}

func TestResolveAppliesWindow(t *testing.T) {
	res, err := utcResolver().Resolve(Definition{
		Interval: "2020-01-01/2020-01-02",
		Period:   "PT1H",
		Window:   "09:00/17:00",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Points) != 10 {
		t.Fatalf("got %d points, want 10: %v", len(res.Points), res.Points)
	}
	if res.Points[0] != jan(1, 9) {
		t.Fatalf("first point = %d, want 09:00", res.Points[0])
	}
}

func TestResolveReportsRejectedEntries(t *testing.T) {
	res, err := utcResolver().Resolve(Definition{Times: "2020-01-01,yesterday"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Points) != 1 || len(res.Rejected) != 1 || res.Rejected[0].Entry != "yesterday" {
		t.Fatalf("resolution = %+v", res)
	}
}

func TestResolveErrors(t *testing.T) {
	capped := utcResolver()
	capped.MaxPoints = 2

	tests := []struct {
		name     string
		resolver Resolver
		def      Definition
		want     error
	}{
		{"empty", utcResolver(), Definition{}, ErrEmptyDefinition},
		{"both kinds", utcResolver(), Definition{Times: "2020", Interval: "2020/P1D"}, ErrAmbiguousDefinition},
		{"bad window", utcResolver(), Definition{Interval: "2020/P1D", Window: "morning"}, clock.ErrMalformedWindow},
		{"bad period", utcResolver(), Definition{Interval: "2020-01-01/2020-01-05", Period: "daily"}, period.ErrDurationParse},
		{"zero period", utcResolver(), Definition{Interval: "2020-01-01/2020-01-05", Period: "PT0S"}, clock.ErrInvalidDuration},
		{"grid cap", capped, Definition{Interval: "2020-01-01/2020-01-05"}, clock.ErrGridTooLarge},
		{"bad times overwrite", utcResolver(), Definition{Times: "2020-01-01/2020-01-03/P1D", Period: "often"}, period.ErrDurationParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.resolver.Resolve(tt.def)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if verr := tt.resolver.Validate(tt.def); !errors.Is(verr, tt.want) {
				t.Fatalf("Validate error = %v, want %v", verr, tt.want)
			}
		})
	}
}
