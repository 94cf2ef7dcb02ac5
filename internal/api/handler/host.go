package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bcnelson/webscenario-manager/internal/domain"
	"github.com/bcnelson/webscenario-manager/internal/service"
	"github.com/bcnelson/webscenario-manager/internal/storage"
	"github.com/bcnelson/webscenario-manager/internal/validation"
)

// HostHandler handles host, template and template link endpoints.
type HostHandler struct {
	store   storage.Storage
	service *service.ScenarioService
}

// NewHostHandler creates a new HostHandler.
func NewHostHandler(store storage.Storage, svc *service.ScenarioService) *HostHandler {
	return &HostHandler{store: store, service: svc}
}

// Create creates a new host or template.
func (h *HostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateHostRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validation.ValidateHostName(req.Name); err != nil {
		respondValidationError(w, "name", req.Name, err.Error())
		return
	}

	now := time.Now()
	host := &domain.Host{
		ID:         generateID(),
		Name:       req.Name,
		IsTemplate: req.IsTemplate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.store.CreateHost(r.Context(), host); err != nil {
		handleError(w, r, err)
		return
	}

	SetHostETag(w, host)
	respondJSON(w, http.StatusCreated, host)
}

// List lists hosts. ?template=true or ?template=false narrows the result.
func (h *HostHandler) List(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.store.ListHosts(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}

	if raw := r.URL.Query().Get("template"); raw != "" {
		want, err := strconv.ParseBool(raw)
		if err != nil {
			respondValidationError(w, "template", raw, "must be true or false")
			return
		}
		filtered := make([]*domain.Host, 0, len(hosts))
		for _, host := range hosts {
			if host.IsTemplate == want {
				filtered = append(filtered, host)
			}
		}
		hosts = filtered
	}

	respondJSON(w, http.StatusOK, hosts)
}

// Get gets a host by id.
func (h *HostHandler) Get(w http.ResponseWriter, r *http.Request) {
	host, err := h.store.GetHost(r.Context(), chi.URLParam(r, "host_id"))
	if err != nil {
		handleError(w, r, err)
		return
	}

	SetHostETag(w, host)
	respondJSON(w, http.StatusOK, host)
}

// Update renames a host.
func (h *HostHandler) Update(w http.ResponseWriter, r *http.Request) {
	host, err := h.store.GetHost(r.Context(), chi.URLParam(r, "host_id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !CheckHostIfMatch(r, host) {
		RespondPreconditionFailed(w, "host", host.ID, host.UpdatedAt)
		return
	}

	var req domain.UpdateHostRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.ValidateHostName(req.Name); err != nil {
		respondValidationError(w, "name", req.Name, err.Error())
		return
	}

	host.Name = req.Name
	if err := h.store.UpdateHost(r.Context(), host); err != nil {
		handleError(w, r, err)
		return
	}

	SetHostETag(w, host)
	respondJSON(w, http.StatusOK, host)
}

// Delete deletes a host with its scenarios. Copies inherited from a deleted
// template stay on their hosts as local scenarios.
func (h *HostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	host, err := h.store.GetHost(r.Context(), chi.URLParam(r, "host_id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !CheckHostIfMatch(r, host) {
		RespondPreconditionFailed(w, "host", host.ID, host.UpdatedAt)
		return
	}

	if err := h.service.DeleteHost(r.Context(), host.ID); err != nil {
		handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTemplates lists the templates linked to a host.
func (h *HostHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	hostID := chi.URLParam(r, "host_id")
	if _, err := h.store.GetHost(r.Context(), hostID); err != nil {
		handleError(w, r, err)
		return
	}

	links, err := h.store.ListHostTemplates(r.Context(), hostID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, links)
}

// LinkTemplate links a template to a host and copies its scenarios.
func (h *HostHandler) LinkTemplate(w http.ResponseWriter, r *http.Request) {
	hostID := chi.URLParam(r, "host_id")

	var req domain.LinkTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TemplateID == "" {
		respondValidationError(w, "template_id", "", "template_id is required")
		return
	}

	report, err := h.service.LinkTemplate(r.Context(), hostID, req.TemplateID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"host_id":     hostID,
		"template_id": req.TemplateID,
		"propagation": report,
	})
}

// UnlinkTemplate removes a template link. With ?clear=true the inherited
// copies are deleted instead of being kept as local scenarios.
func (h *HostHandler) UnlinkTemplate(w http.ResponseWriter, r *http.Request) {
	hostID := chi.URLParam(r, "host_id")
	templateID := chi.URLParam(r, "template_id")

	clear := false
	if raw := r.URL.Query().Get("clear"); raw != "" {
		var err error
		if clear, err = strconv.ParseBool(raw); err != nil {
			respondValidationError(w, "clear", raw, "must be true or false")
			return
		}
	}

	affected, err := h.service.UnlinkTemplate(r.Context(), hostID, templateID, clear)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cleared":   clear,
		"scenarios": affected,
	})
}

// Resync propagates a template's scenarios to all linked hosts again.
func (h *HostHandler) Resync(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Resync(r.Context(), chi.URLParam(r, "template_id"))
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}
