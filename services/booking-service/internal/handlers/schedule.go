package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
)

type exceptionRequest struct {
	Type       string                `json:"type"`
	StartTime  string                `json:"start_time"`
	EndTime    string                `json:"end_time"`
	Recurrence *model.RecurrenceRule `json:"recurrence"`
	Capacity   int                   `json:"capacity"`
	Reason     string                `json:"reason"`
}

func (h *Handler) writeExceptionResult(w http.ResponseWriter, res booking.ExceptionResult, err error, op string, created bool) {
	if err != nil {
		writeInfraError(w, h.logger, op, err)
		return
	}
	writeJSON(w, resultStatus(res.Success, res.Errors, created), res)
}

func (h *Handler) AddException(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if actor == model.ActorClient {
		writeError(w, http.StatusForbidden, "only providers and admins manage schedules")
		return
	}
	var req exceptionRequest
	if !decode(w, r, &req) {
		return
	}
	start, ok := parseTime(req.StartTime)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid start_time")
		return
	}
	end, ok := parseTime(req.EndTime)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid end_time")
		return
	}
	res, err := h.engine.AddException(r.Context(), booking.ExceptionRequest{
		ProviderID:  r.PathValue("id"),
		Type:        model.ExceptionType(strings.ToUpper(strings.TrimSpace(req.Type))),
		StartTime:   start,
		EndTime:     end,
		Recurrence:  req.Recurrence,
		Capacity:    req.Capacity,
		Reason:      strings.TrimSpace(req.Reason),
		RequestedBy: actor,
	})
	h.writeExceptionResult(w, res, err, "add exception", true)
}

func (h *Handler) RemoveException(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if actor == model.ActorClient {
		writeError(w, http.StatusForbidden, "only providers and admins manage schedules")
		return
	}
	res, err := h.engine.RemoveException(r.Context(), r.PathValue("id"), r.PathValue("exceptionID"))
	h.writeExceptionResult(w, res, err, "remove exception", false)
}

type approvalRequest struct {
	Status string `json:"status"`
}

func (h *Handler) ApproveException(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if actor != model.ActorAdmin {
		writeError(w, http.StatusForbidden, "only admins approve exceptions")
		return
	}
	var req approvalRequest
	if !decode(w, r, &req) {
		return
	}
	status := model.ApprovalStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	res, err := h.engine.SetExceptionApproval(r.Context(), r.PathValue("id"), r.PathValue("exceptionID"), status)
	h.writeExceptionResult(w, res, err, "set exception approval", false)
}

// CalendarStream pushes calendar events for one provider as server-sent
// events until the client disconnects. Clients that fall behind lose events
// and should re-read the provider's appointments.
func (h *Handler) CalendarStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}
	from, to, ok := rangeParams(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.engine.Events().Calendar.Subscribe(events.CalendarBetween(r.PathValue("id"), from, to))
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		evt, err := sub.Next(r.Context())
		if err != nil {
			return
		}
		body, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", strings.ToLower(string(evt.Type)), body); err != nil {
			return
		}
		flusher.Flush()
	}
}
