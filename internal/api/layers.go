/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/timedimension/internal/timeline"
)

func (a *API) handleLayersList(w http.ResponseWriter, r *http.Request) {
	layers, err := a.timelines.ListLayers(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, layers)
}

func (a *API) handleLayersCreate(w http.ResponseWriter, r *http.Request) {
	var in timeline.LayerInput
	if err := decodeJSON(w, r, &in); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	layer, err := a.timelines.CreateLayer(r.Context(), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, layer)
}

func (a *API) handleLayersGet(w http.ResponseWriter, r *http.Request) {
	layer, err := a.timelines.GetLayer(r.Context(), chi.URLParam(r, "layerID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, layer)
}

func (a *API) handleLayersUpdate(w http.ResponseWriter, r *http.Request) {
	var in timeline.LayerInput
	if err := decodeJSON(w, r, &in); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	layer, err := a.timelines.UpdateLayer(r.Context(), chi.URLParam(r, "layerID"), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, layer)
}

func (a *API) handleLayersDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.timelines.DeleteLayer(r.Context(), chi.URLParam(r, "layerID")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLayerTimes(w http.ResponseWriter, r *http.Request) {
	res, err := a.timelines.ResolveLayer(r.Context(), chi.URLParam(r, "layerID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
