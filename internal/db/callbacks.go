/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/friendsincode/timedimension/internal/telemetry"
)

const statementStart = "timedim:statement_start"

// Tables labelled by name in the statement metrics. Joins, raw SQL and
// migrator queries share the "other" label.
var trackedTables = map[string]bool{
	"layers":          true,
	"timelines":       true,
	"timeline_layers": true,
	"exports":         true,
}

// RegisterCallbacks times every query, create, update and delete, labels it
// by table and attaches it as an event to the span in the statement context,
// so layer and timeline resolutions show their database work.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Query().Before("gorm:query").Register("timedim:before_query", startStatement),
		cb.Query().After("gorm:query").Register("timedim:after_query", finishStatement("query")),
		cb.Create().Before("gorm:create").Register("timedim:before_create", startStatement),
		cb.Create().After("gorm:create").Register("timedim:after_create", finishStatement("create")),
		cb.Update().Before("gorm:update").Register("timedim:before_update", startStatement),
		cb.Update().After("gorm:update").Register("timedim:after_update", finishStatement("update")),
		cb.Delete().Before("gorm:delete").Register("timedim:before_delete", startStatement),
		cb.Delete().After("gorm:delete").Register("timedim:after_delete", finishStatement("delete")),
	)
}

func startStatement(tx *gorm.DB) {
	tx.InstanceSet(statementStart, time.Now())
}

func finishStatement(operation string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		v, ok := tx.InstanceGet(statementStart)
		if !ok {
			return
		}
		started, ok := v.(time.Time)
		if !ok {
			return
		}

		table := tableLabel(tx.Statement)
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(started).Seconds())
		if tx.RowsAffected > 0 {
			telemetry.DatabaseRowsTotal.WithLabelValues(operation, table).Add(float64(tx.RowsAffected))
		}
		kind := errorKind(tx.Error)
		if kind != "" {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, kind).Inc()
		}

		if tx.Statement.Context == nil {
			return
		}
		span := trace.SpanFromContext(tx.Statement.Context)
		if !span.IsRecording() {
			return
		}
		attrs := []attribute.KeyValue{
			attribute.String("db.sql.table", table),
			attribute.Int64("db.rows_affected", tx.RowsAffected),
		}
		if kind != "" {
			attrs = append(attrs, attribute.String("db.error_kind", kind))
		}
		span.AddEvent("db."+operation, trace.WithAttributes(attrs...))
	}
}

func tableLabel(stmt *gorm.Statement) string {
	table := stmt.Table
	if table == "" && stmt.Schema != nil {
		table = stmt.Schema.Table
	}
	if trackedTables[table] {
		return table
	}
	return "other"
}

// errorKind buckets a statement error. Missing rows are an expected outcome
// of lookups by id and are not counted.
func errorKind(err error) string {
	switch {
	case err == nil, errors.Is(err, gorm.ErrRecordNotFound):
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return "conflict"
	}
	return "query_error"
}

// isUniqueViolation matches the driver messages for duplicate layer and
// timeline names when gorm's error translation is off.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}

// UpdateConnectionMetrics samples the pool size.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsActive.Set(float64(sqlDB.Stats().OpenConnections))
}
