package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sourccey/kiosk-relay/internal/httputil"
	"github.com/sourccey/kiosk-relay/internal/model"
)

// KioskService is the part of the pairing service the local kiosk UI reaches.
type KioskService interface {
	PairingInfo(ctx context.Context) (model.PairingInfo, error)
	RevokeAllTokens(ctx context.Context) (int, error)
	ActiveDownloads() ([]string, error)
}

type PairingHandler struct {
	svc KioskService
}

func NewPairingHandler(svc KioskService) *PairingHandler {
	return &PairingHandler{svc: svc}
}

func (h *PairingHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/pairing", h.GetPairingInfo)
	r.Delete("/tokens", h.RevokeTokens)
	r.Get("/downloads", h.ListDownloads)

	return r
}

// GET /api/pairing
// Current pairing code and identity for the kiosk screen. Expired codes are
// rotated before they are returned.
func (h *PairingHandler) GetPairingInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.PairingInfo(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to read pairing info")
		httputil.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// DELETE /api/tokens
func (h *PairingHandler) RevokeTokens(w http.ResponseWriter, r *http.Request) {
	revoked, err := h.svc.RevokeAllTokens(r.Context())
	if err != nil {
		log.Error().Err(err).Int("revoked", revoked).Msg("failed to revoke tokens")
		httputil.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
}

// GET /api/downloads
func (h *PairingHandler) ListDownloads(w http.ResponseWriter, r *http.Request) {
	keys, err := h.svc.ActiveDownloads()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"active": keys})
}
