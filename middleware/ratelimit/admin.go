package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/go-chi/chi/v5"
)

// AdminController is the administrative control as seen by the HTTP layer.
type AdminController interface {
	Status(ctx context.Context, key domain.Key, policyName string) (*domain.CounterRecord, error)
	Reset(ctx context.Context, key domain.Key, policyName string) error
}

type PolicyLister interface {
	Policies() []domain.Policy
}

type policyView struct {
	Name          string `json:"name"`
	Namespace     string `json:"namespace"`
	Budget        int    `json:"budget"`
	WindowSeconds int64  `json:"windowSeconds"`
	BlockSeconds  int64  `json:"blockSeconds"`
	Smooth        bool   `json:"smooth,omitempty"`
}

type statusView struct {
	Policy string                `json:"policy"`
	Key    string                `json:"key"`
	Record *domain.CounterRecord `json:"record"`
}

// AdminHandler serves status and reset of counter state:
//
//	GET  /ratelimit/policies
//	GET  /ratelimit/{policy}/status?key=...
//	POST /ratelimit/{policy}/reset?key=...
//
// It does not authenticate; mount it behind the caller's auth middleware.
func AdminHandler(ctrl AdminController, policies PolicyLister, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &adminHandler{ctrl: ctrl, policies: policies, log: log.With("component", "ratelimit-admin")}

	r := chi.NewRouter()
	r.Route("/ratelimit", func(r chi.Router) {
		r.Get("/policies", h.listPolicies)
		r.Get("/{policy}/status", h.status)
		r.Post("/{policy}/reset", h.reset)
	})
	return r
}

type adminHandler struct {
	ctrl     AdminController
	policies PolicyLister
	log      *slog.Logger
}

func (h *adminHandler) listPolicies(w http.ResponseWriter, _ *http.Request) {
	var out []policyView
	if h.policies != nil {
		for _, p := range h.policies.Policies() {
			out = append(out, policyView{
				Name:          p.Name,
				Namespace:     p.Namespace,
				Budget:        p.Budget,
				WindowSeconds: int64(p.Window.Seconds()),
				BlockSeconds:  int64(p.BlockDuration().Seconds()),
				Smooth:        p.Smooth,
			})
		}
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: out})
}

func (h *adminHandler) status(w http.ResponseWriter, r *http.Request) {
	policy, key, ok := h.params(w, r)
	if !ok {
		return
	}
	rec, err := h.ctrl.Status(r.Context(), key, policy)
	if err != nil {
		h.fail(w, policy, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data:    statusView{Policy: policy, Key: string(key), Record: rec},
	})
}

func (h *adminHandler) reset(w http.ResponseWriter, r *http.Request) {
	policy, key, ok := h.params(w, r)
	if !ok {
		return
	}
	if err := h.ctrl.Reset(r.Context(), key, policy); err != nil {
		h.fail(w, policy, err)
		return
	}
	h.log.Info("rate limit reset", "policy", policy, "key", string(key))
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "reset"})
}

func (h *adminHandler) params(w http.ResponseWriter, r *http.Request) (string, domain.Key, bool) {
	policy := chi.URLParam(r, "policy")
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return "", "", false
	}
	return policy, domain.Key(key), true
}

func (h *adminHandler) fail(w http.ResponseWriter, policy string, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownPolicy):
		writeError(w, http.StatusNotFound, "unknown policy")
	case errors.Is(err, domain.ErrInvalidKeyDerivation):
		writeError(w, http.StatusBadRequest, "invalid key")
	case errors.Is(err, domain.ErrStoreUnavailable):
		h.log.Error("admin store call failed", "policy", policy, "err", err)
		writeError(w, http.StatusServiceUnavailable, "counter store unavailable")
	default:
		h.log.Error("admin call failed", "policy", policy, "err", err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
