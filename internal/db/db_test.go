package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"github.com/friendsincode/timedimension/internal/config"
	"github.com/friendsincode/timedimension/internal/models"
	"github.com/friendsincode/timedimension/internal/telemetry"
)

func TestConnectAndMigrateSQLite(t *testing.T) {
	cfg := &config.Config{DBBackend: config.DatabaseSQLite, DBDSN: "file::memory:", Environment: "test"}

	database, err := Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = Close(database) }()

	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	layer := models.NewLayer("daily")
	layer.Interval = "2020-01-01/P3D"
	if err := database.Create(layer).Error; err != nil {
		t.Fatalf("create layer: %v", err)
	}

	tl := models.NewTimeline("combined")
	tl.Mode = "INTERSECT"
	tl.Layers = []models.Layer{*layer}
	if err := database.Create(tl).Error; err != nil {
		t.Fatalf("create timeline: %v", err)
	}

	// Re-running migrate normalises hand-written modes.
	if err := Migrate(database); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var got models.Timeline
	if err := database.Preload("Layers").First(&got, "id = ?", tl.ID).Error; err != nil {
		t.Fatalf("load timeline: %v", err)
	}
	if got.Mode != models.TimelineModeIntersect {
		t.Fatalf("mode = %q, want intersect", got.Mode)
	}
	if len(got.Layers) != 1 || got.Layers[0].ID != layer.ID {
		t.Fatalf("layers = %+v", got.Layers)
	}

	UpdateConnectionMetrics(database)
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	if _, err := Connect(&config.Config{DBBackend: "oracle"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestStatementMetricsByTable(t *testing.T) {
	cfg := &config.Config{DBBackend: config.DatabaseSQLite, DBDSN: "file::memory:", Environment: "test"}
	database, err := Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = Close(database) }()
	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	created := testutil.ToFloat64(telemetry.DatabaseRowsTotal.WithLabelValues("create", "layers"))
	conflicts := testutil.ToFloat64(telemetry.DatabaseErrorsTotal.WithLabelValues("create", "conflict"))

	if err := database.Create(models.NewLayer("weekly")).Error; err != nil {
		t.Fatalf("create layer: %v", err)
	}
	if got := testutil.ToFloat64(telemetry.DatabaseRowsTotal.WithLabelValues("create", "layers")); got != created+1 {
		t.Fatalf("layers create rows = %v, want %v", got, created+1)
	}

	if err := database.Create(models.NewLayer("weekly")).Error; err == nil {
		t.Fatal("expected duplicate layer name to fail")
	}
	if got := testutil.ToFloat64(telemetry.DatabaseErrorsTotal.WithLabelValues("create", "conflict")); got != conflicts+1 {
		t.Fatalf("conflict errors = %v, want %v", got, conflicts+1)
	}
}

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"":            gorm.ErrRecordNotFound,
		"cancelled":   fmt.Errorf("load layers: %w", context.Canceled),
		"conflict":    errors.New("UNIQUE constraint failed: layers.name"),
		"query_error": errors.New("no such column: cadence"),
	}
	for want, err := range cases {
		if got := errorKind(err); got != want {
			t.Errorf("errorKind(%v) = %q, want %q", err, got, want)
		}
	}
	if got := errorKind(nil); got != "" {
		t.Errorf("errorKind(nil) = %q", got)
	}
}

func TestTableLabel(t *testing.T) {
	if got := tableLabel(&gorm.Statement{Table: "timeline_layers"}); got != "timeline_layers" {
		t.Fatalf("label = %q", got)
	}
	if got := tableLabel(&gorm.Statement{Table: "sqlite_master"}); got != "other" {
		t.Fatalf("label = %q", got)
	}
}
