package models

import (
	"testing"
	"time"
)

func TestLayerKind(t *testing.T) {
	l := NewLayer("radar")
	if !l.Enabled || l.ID == "" {
		t.Fatalf("NewLayer = %+v", l)
	}

	l.Interval = "2020-01-01/P1D"
	if l.Kind() != LayerKindInterval {
		t.Fatalf("Kind = %s, want interval", l.Kind())
	}
	l.Times = " 2020-01-01 "
	if l.Kind() != LayerKindTimes {
		t.Fatalf("Kind = %s, want times", l.Kind())
	}
}

func TestLayerRevisionFollowsUpdatedAt(t *testing.T) {
	l := Layer{UpdatedAt: time.Unix(10, 5)}
	if l.Revision() != 10_000_000_005 {
		t.Fatalf("Revision = %d", l.Revision())
	}
}

func TestTimelineMode(t *testing.T) {
	tl := NewTimeline("weather")
	if tl.Mode != TimelineModeUnion {
		t.Fatalf("default mode = %s", tl.Mode)
	}
	for _, m := range []TimelineMode{TimelineModeUnion, TimelineModeIntersect} {
		if !m.Valid() {
			t.Errorf("%s should be valid", m)
		}
	}
	if TimelineMode("xor").Valid() {
		t.Error("xor should be invalid")
	}

	tl.Layers = []Layer{{ID: "a"}, {ID: "b"}}
	if ids := tl.LayerIDs(); len(ids) != 2 || ids[1] != "b" {
		t.Fatalf("LayerIDs = %v", ids)
	}
}
