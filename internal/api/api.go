/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/timedimension/internal/auth"
	"github.com/friendsincode/timedimension/internal/cache"
	"github.com/friendsincode/timedimension/internal/clock"
	"github.com/friendsincode/timedimension/internal/datemath"
	"github.com/friendsincode/timedimension/internal/events"
	"github.com/friendsincode/timedimension/internal/export"
	"github.com/friendsincode/timedimension/internal/interval"
	"github.com/friendsincode/timedimension/internal/logbuffer"
	"github.com/friendsincode/timedimension/internal/period"
	"github.com/friendsincode/timedimension/internal/timeline"
	"github.com/friendsincode/timedimension/internal/timestamp"
	"github.com/friendsincode/timedimension/internal/version"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// API exposes HTTP handlers.
type API struct {
	timelines *timeline.Service
	exports   *export.Service
	bus       events.Publisher
	logBuffer *logbuffer.Buffer
	cache     *cache.Cache
	updates   *version.Checker
	jwtSecret []byte
	dateMode  datemath.Mode
	logger    zerolog.Logger
}

// New creates the API router wrapper. An empty jwtSecret leaves mutating
// endpoints open.
func New(timelines *timeline.Service, exports *export.Service, bus events.Publisher, logBuf *logbuffer.Buffer, jwtSecret []byte, dateMode datemath.Mode, logger zerolog.Logger) *API {
	return &API{
		timelines: timelines,
		exports:   exports,
		bus:       bus,
		logBuffer: logBuf,
		jwtSecret: jwtSecret,
		dateMode:  dateMode,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// SetCache exposes cache state on the status endpoint.
func (a *API) SetCache(c *cache.Cache) {
	a.cache = c
}

// SetUpdateChecker reports release information on the version endpoint.
func (a *API) SetUpdateChecker(c *version.Checker) {
	a.updates = c
}

// Routes registers every endpoint under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/version", a.handleVersion)

		// Stateless time arithmetic
		r.Get("/durations/parse", a.handleDurationParse)
		r.Post("/durations/apply", a.handleDurationApply)
		r.Get("/intervals/parse", a.handleIntervalParse)
		r.Post("/grids", a.handleGridBuild)
		r.Post("/times/parse", a.handleTimesParse)
		r.Post("/sequences/{op}", a.handleSequenceOp)

		r.Route("/layers", func(r chi.Router) {
			r.Get("/", a.handleLayersList)
			r.With(a.writeAuth()).Post("/", a.handleLayersCreate)
			r.Route("/{layerID}", func(r chi.Router) {
				r.Get("/", a.handleLayersGet)
				r.With(a.writeAuth()).Put("/", a.handleLayersUpdate)
				r.With(a.writeAuth()).Delete("/", a.handleLayersDelete)
				r.Get("/times", a.handleLayerTimes)
			})
		})

		r.Route("/timelines", func(r chi.Router) {
			r.Get("/", a.handleTimelinesList)
			r.With(a.writeAuth()).Post("/", a.handleTimelinesCreate)
			r.Route("/{timelineID}", func(r chi.Router) {
				r.Get("/", a.handleTimelinesGet)
				r.With(a.writeAuth()).Put("/", a.handleTimelinesUpdate)
				r.With(a.writeAuth()).Delete("/", a.handleTimelinesDelete)
				r.Get("/times", a.handleTimelineTimes)
				r.Get("/stream", a.handleTimelineStream)
				r.Get("/exports", a.handleExportsList)
				r.With(a.writeAuth()).Post("/exports", a.handleExportsCreate)
			})
		})
		r.Get("/exports/{exportID}/download", a.handleExportDownload)

		r.Route("/system", func(r chi.Router) {
			r.Use(a.writeAuth())
			r.Get("/status", a.handleSystemStatus)
			r.Get("/logs", a.handleSystemLogs)
			r.Get("/logs/components", a.handleLogComponents)
			r.Get("/logs/stats", a.handleLogStats)
			r.Delete("/logs", a.handleClearLogs)
		})
	})
}

func (a *API) writeAuth() func(http.Handler) http.Handler {
	return auth.Middleware(a.jwtSecret, auth.ScopeWrite)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeErrorDetail(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}

// writeServiceError maps domain errors to HTTP statuses. Grid errors are
// checked before the generic validation kinds they may be wrapped in.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, code)
		return
	}
	writeErrorDetail(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, timeline.ErrLayerNotFound),
		errors.Is(err, timeline.ErrTimelineNotFound),
		errors.Is(err, export.ErrExportNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, timeline.ErrNameTaken):
		return http.StatusConflict, "name_taken"
	case errors.Is(err, clock.ErrGridTooLarge):
		return http.StatusUnprocessableEntity, "grid_too_large"
	case errors.Is(err, clock.ErrInvalidDuration):
		return http.StatusUnprocessableEntity, "invalid_step"
	case errors.Is(err, period.ErrDurationParse):
		return http.StatusBadRequest, "invalid_duration"
	case errors.Is(err, interval.ErrMalformedInterval):
		return http.StatusBadRequest, "malformed_interval"
	case errors.Is(err, clock.ErrMalformedWindow):
		return http.StatusBadRequest, "malformed_window"
	case errors.Is(err, timestamp.ErrUnparseable):
		return http.StatusBadRequest, "invalid_date"
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported_format"
	case errors.Is(err, timeline.ErrInvalidInput),
		errors.Is(err, timeline.ErrEmptyDefinition),
		errors.Is(err, timeline.ErrAmbiguousDefinition),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
