package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bcnelson/webscenario-manager/internal/domain"
	"github.com/bcnelson/webscenario-manager/internal/inheritance"
	"github.com/bcnelson/webscenario-manager/internal/service"
	"github.com/bcnelson/webscenario-manager/internal/storage"
)

// ScenarioHandler handles web scenario endpoints.
type ScenarioHandler struct {
	store   storage.Storage
	service *service.ScenarioService
}

// NewScenarioHandler creates a new ScenarioHandler.
func NewScenarioHandler(store storage.Storage, svc *service.ScenarioService) *ScenarioHandler {
	return &ScenarioHandler{store: store, service: svc}
}

// scenarioResponse is a scenario together with what saving it did to the
// hosts inheriting it.
type scenarioResponse struct {
	*domain.Scenario
	Propagation *inheritance.Report `json:"propagation,omitempty"`
}

// Create creates a scenario on a host or template.
func (h *ScenarioHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sc, report, err := h.service.CreateScenario(r.Context(), chi.URLParam(r, "host_id"), &req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	SetScenarioETag(w, sc)
	respondJSON(w, http.StatusCreated, &scenarioResponse{Scenario: sc, Propagation: report})
}

// List lists the scenarios of a host.
func (h *ScenarioHandler) List(w http.ResponseWriter, r *http.Request) {
	hostID := chi.URLParam(r, "host_id")
	if _, err := h.store.GetHost(r.Context(), hostID); err != nil {
		handleError(w, r, err)
		return
	}

	scenarios, err := h.store.ListScenarios(r.Context(), hostID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, scenarios)
}

// Get gets a scenario by id.
func (h *ScenarioHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc, err := h.store.GetScenario(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}

	SetScenarioETag(w, sc)
	respondJSON(w, http.StatusOK, sc)
}

// Update applies a partial update to a scenario.
func (h *ScenarioHandler) Update(w http.ResponseWriter, r *http.Request) {
	current, err := h.store.GetScenario(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !CheckScenarioIfMatch(r, current) {
		RespondPreconditionFailed(w, "scenario", current.ID, current.UpdatedAt)
		return
	}

	var req domain.UpdateScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sc, report, err := h.service.UpdateScenario(r.Context(), current.ID, &req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	SetScenarioETag(w, sc)
	respondJSON(w, http.StatusOK, &scenarioResponse{Scenario: sc, Propagation: report})
}

// Delete deletes a scenario and every copy inherited from it.
func (h *ScenarioHandler) Delete(w http.ResponseWriter, r *http.Request) {
	current, err := h.store.GetScenario(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !CheckScenarioIfMatch(r, current) {
		RespondPreconditionFailed(w, "scenario", current.ID, current.UpdatedAt)
		return
	}

	if err := h.service.DeleteScenario(r.Context(), current.ID); err != nil {
		handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Items lists the check items generated for a scenario and its steps.
func (h *ScenarioHandler) Items(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetScenario(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}

	items, err := h.store.ListScenarioItems(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, items)
}
