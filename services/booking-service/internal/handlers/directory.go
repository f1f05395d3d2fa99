package handlers

import (
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
)

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := h.authorize(w, r)
	if !ok {
		return false
	}
	if actor != model.ActorAdmin {
		writeError(w, http.StatusForbidden, "admin only")
		return false
	}
	return true
}

func (h *Handler) PutProvider(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var p model.Provider
	if !decode(w, r, &p) {
		return
	}
	p.ID = r.PathValue("id")
	if err := h.engine.SaveProvider(r.Context(), p); err != nil {
		if errors.Is(err, booking.ErrInvalidRecord) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeInfraError(w, h.logger, "save provider", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) PutClient(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var c model.Client
	if !decode(w, r, &c) {
		return
	}
	c.ID = r.PathValue("id")
	if err := h.engine.SaveClient(r.Context(), c); err != nil {
		if errors.Is(err, booking.ErrInvalidRecord) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeInfraError(w, h.logger, "save client", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
