package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jobhub-dev/jobhub/internal/api"
	"github.com/jobhub-dev/jobhub/internal/draft"
	"github.com/jobhub-dev/jobhub/internal/modal"
	"github.com/jobhub-dev/jobhub/internal/rewards"
	"github.com/jobhub-dev/jobhub/internal/session"
	"github.com/jobhub-dev/jobhub/internal/wizard"
	"github.com/jobhub-dev/jobhub/pkg/hubcore"
)

func (h *Hub) apiRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(h.Sessions.Middleware)
		r.Use(h.Gate.Middleware)

		// Wizard draft
		r.Get("/draft", h.getDraft)
		r.Patch("/draft", h.patchDraft)
		r.Delete("/draft", h.deleteDraft)
		r.Get("/draft/status", h.draftStatus)

		// Registration wizard
		r.Post("/wizard/begin", h.beginWizard)
		r.Post("/wizard/submit", h.submitWizard)
		r.Post("/wizard/cancel", h.cancelWizard)

		// Overlays
		r.Get("/modals", h.getModals)
		r.Post("/modals/{kind}/open", h.openModal)
		r.Post("/modals/{kind}/close", h.closeModal)

		// Flags and maintenance
		r.Get("/flags", h.getFlags)
		r.Put("/flags/banner/{name}", h.putBanner)
		r.Post("/maintenance/unlock", h.Gate.UnlockHandler)

		// Rewards
		r.Get("/rewards/countdown", h.countdown)
		r.Get("/rewards/stats", h.rewardsStats)
		r.Get("/rewards/claims", h.rewardClaims)
		r.Post("/rewards/claims/{id}/claim", h.claimReward)

		// Marketplace reads and mutations
		r.Get("/jobs", h.listJobs)
		r.Post("/jobs", h.saveJob)
		r.Get("/jobs/mine", h.myJobs)
		r.Get("/jobs/{id}", h.getJob)
		r.Delete("/jobs/{id}", h.deleteJob)
		r.Get("/resources", h.listResources)
		r.Get("/resources/{slug}", h.getResource)
		r.Get("/servers", h.listServers)
		r.Get("/servers/{id}", h.getServer)
		r.Get("/wallet", h.getWallet)
		r.Get("/stats", h.getStats)

		r.With(h.Limiter.Handler).Post("/test-endpoint", h.Tester.Handler())
	})
}

func (h *Hub) hooks(r *http.Request) *api.Hooks {
	if hk := session.HooksFromContext(r.Context()); hk != nil {
		return hk
	}
	return h.Hooks
}

// writeError maps domain errors onto HTTP responses.
func (h *Hub) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		apiErr *api.APIError
		netErr *api.NetworkError
		valErr *wizard.ValidationError
	)
	switch {
	case errors.As(err, &valErr):
		hubcore.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": map[string]any{
				"message": valErr.Error(),
				"type":    "validation_error",
				"code":    http.StatusUnprocessableEntity,
				"fields":  valErr.Fields,
			},
		})
	case errors.Is(err, wizard.ErrNoDraft):
		hubcore.Error(w, http.StatusConflict, err.Error())
	case errors.As(err, &apiErr):
		hubcore.Error(w, apiErr.StatusCode, apiErr.Message)
	case errors.As(err, &netErr):
		status := http.StatusBadGateway
		if netErr.Timeout {
			status = http.StatusGatewayTimeout
		}
		hubcore.Error(w, status, netErr.Error())
	default:
		h.Logger.Error("request failed", "path", r.URL.Path, "err", err)
		hubcore.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// respond writes v, or the error when err is set.
func respond[T any](h *Hub, w http.ResponseWriter, r *http.Request, v T, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	hubcore.JSON(w, http.StatusOK, v)
}

// ---------------------------------------------------------------------------
// Draft
// ---------------------------------------------------------------------------

type draftResponse struct {
	Draft *draft.WizardDraft `json:"draft"`
}

func (h *Hub) getDraft(w http.ResponseWriter, r *http.Request) {
	d, _ := session.FromContext(r.Context()).Drafts.Get(r.Context())
	hubcore.JSON(w, http.StatusOK, draftResponse{Draft: d})
}

func (h *Hub) patchDraft(w http.ResponseWriter, r *http.Request) {
	var p draft.Patch
	if err := hubcore.DecodeJSON(w, r, &p); err != nil {
		hubcore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := h.wizard(r).Update(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	hubcore.JSON(w, http.StatusOK, draftResponse{Draft: &d})
}

func (h *Hub) deleteDraft(w http.ResponseWriter, r *http.Request) {
	session.FromContext(r.Context()).Drafts.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Hub) draftStatus(w http.ResponseWriter, r *http.Request) {
	drafts := session.FromContext(r.Context()).Drafts
	d, ok := drafts.Get(r.Context())
	status := map[string]any{
		"exists":            ok,
		"hasUnsavedChanges": drafts.HasUnsavedChanges(r.Context()),
	}
	if ok {
		status["updatedAt"] = d.UpdatedAt
	}
	hubcore.JSON(w, http.StatusOK, status)
}

// ---------------------------------------------------------------------------
// Wizard
// ---------------------------------------------------------------------------

func (h *Hub) wizard(r *http.Request) *wizard.Flow {
	return session.FromContext(r.Context()).Wizard(h.hooks(r))
}

func (h *Hub) beginWizard(w http.ResponseWriter, r *http.Request) {
	d, resumed := h.wizard(r).Begin(r.Context(), nil)
	hubcore.JSON(w, http.StatusOK, map[string]any{"draft": d, "resumed": resumed})
}

func (h *Hub) submitWizard(w http.ResponseWriter, r *http.Request) {
	res, err := h.wizard(r).Submit(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	hubcore.JSON(w, http.StatusCreated, res)
}

func (h *Hub) cancelWizard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if r.ContentLength != 0 {
		if err := hubcore.DecodeJSON(w, r, &req); err != nil {
			hubcore.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	closed := h.wizard(r).Cancel(r.Context(), func() bool { return req.Confirm })
	hubcore.JSON(w, http.StatusOK, map[string]bool{"closed": closed})
}

// ---------------------------------------------------------------------------
// Modals
// ---------------------------------------------------------------------------

func (h *Hub) getModals(w http.ResponseWriter, r *http.Request) {
	hubcore.JSON(w, http.StatusOK, session.FromContext(r.Context()).Modals.State())
}

func (h *Hub) openModal(w http.ResponseWriter, r *http.Request) {
	k, err := modal.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		hubcore.Error(w, http.StatusNotFound, err.Error())
		return
	}
	var raw json.RawMessage
	if r.ContentLength != 0 {
		if err := hubcore.DecodeJSON(w, r, &raw); err != nil {
			hubcore.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	data, err := modal.DecodeData(k, raw)
	if err != nil {
		hubcore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	var p *modal.Payload
	if data != nil {
		p = &modal.Payload{Data: data}
	}
	modals := session.FromContext(r.Context()).Modals
	modals.Open(k, p)
	hubcore.JSON(w, http.StatusOK, modals.State()[k])
}

func (h *Hub) closeModal(w http.ResponseWriter, r *http.Request) {
	k, err := modal.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		hubcore.Error(w, http.StatusNotFound, err.Error())
		return
	}
	modals := session.FromContext(r.Context()).Modals
	modals.Close(k)
	hubcore.JSON(w, http.StatusOK, modals.State()[k])
}

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

func (h *Hub) getFlags(w http.ResponseWriter, r *http.Request) {
	view := session.FlagsFor(r).Snapshot(r.Context(), h.cfg.Maintenance.Banners)
	hubcore.JSON(w, http.StatusOK, map[string]any{
		"banners":           view.Banners,
		"maintenanceBypass": view.MaintenanceBypass,
		"maintenance":       h.Gate.Enabled(),
	})
}

func (h *Hub) putBanner(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dismissed bool `json:"dismissed"`
	}
	if err := hubcore.DecodeJSON(w, r, &req); err != nil {
		hubcore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	name := chi.URLParam(r, "name")
	session.FlagsFor(r).DismissBanner(r.Context(), name, req.Dismissed)
	hubcore.JSON(w, http.StatusOK, map[string]any{"banner": name, "dismissed": req.Dismissed})
}

// ---------------------------------------------------------------------------
// Rewards
// ---------------------------------------------------------------------------

func (h *Hub) countdown(w http.ResponseWriter, r *http.Request) {
	hubcore.JSON(w, http.StatusOK, rewards.StatusAt(h.Clock.Now()))
}

func (h *Hub) rewardsStats(w http.ResponseWriter, r *http.Request) {
	v, err := h.hooks(r).RewardsStats(r.Context())
	respond(h, w, r, v, err)
}

func (h *Hub) rewardClaims(w http.ResponseWriter, r *http.Request) {
	v, err := h.hooks(r).RewardClaims(r.Context())
	respond(h, w, r, v, err)
}

func (h *Hub) claimReward(w http.ResponseWriter, r *http.Request) {
	v, err := h.hooks(r).ClaimReward(r.Context(), chi.URLParam(r, "id"))
	respond(h, w, r, v, err)
}

// ---------------------------------------------------------------------------
// Marketplace
// ---------------------------------------------------------------------------

func (h *Hub) listJobs(w http.ResponseWriter, r *http.Request) {
	v, err := h.hooks(r).Jobs(r.Context())
	respond(h, w, r, v, err)
}

func (h *Hub) myJobs(w http.ResponseWriter, r *http.Request) {
	v, err := h.hooks(r).MyJobs(r.Context())
	respond(h, w, r, v, err)
}

func (h *Hub) getJob(w http.ResponseWriter, r *http.Request) {
	v, err := h.hooks(r).Job(r.Context(), chi.URLParam(r, "id"))
	respond(h, w, r, v, err)
}

func (h *Hub) saveJob(w http.ResponseWriter, r *http.Request) {
	var in api.JobInput
	if err := hubcore.DecodeJSON(w, r, &in); err != nil {
		hubcore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := h.hooks(r).SaveJob(r.Context(), in)
	respond(h, w, r, v, err)
}

func (h *Hub) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.hooks(r).DeleteJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Hub) listResources(w http.ResponseWriter, r *http.Request) {
	v, err := h.hooks(r).Resources(r.Context())
	respond(h, w, r, v, err)
}

func (h *Hub) getResource(w http.ResponseWriter, r *http.Request) {
	v, err := h.hooks(r).Resource(r.Context(), chi.URLParam(r, "slug"))
	respond(h, w, r, v, err)
}

func (h *Hub) listServers(w http.ResponseWriter, r *http.Request) {
	v, err := h.hooks(r).Servers(r.Context())
	respond(h, w, r, v, err)
}

func (h *Hub) getServer(w http.ResponseWriter, r *http.Request) {
	v, err := h.hooks(r).Server(r.Context(), chi.URLParam(r, "id"))
	respond(h, w, r, v, err)
}

func (h *Hub) getWallet(w http.ResponseWriter, r *http.Request) {
	v, err := h.hooks(r).Wallet(r.Context())
	respond(h, w, r, v, err)
}

func (h *Hub) getStats(w http.ResponseWriter, r *http.Request) {
	v, err := h.hooks(r).Stats(r.Context())
	respond(h, w, r, v, err)
}
