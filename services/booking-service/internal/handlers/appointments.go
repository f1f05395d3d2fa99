package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// AvailabilityCache is consulted before computing provider availability.
type AvailabilityCache interface {
	Get(ctx context.Context, q booking.AvailabilityQuery) (slots []booking.Slot, version int64, hit bool)
	Set(ctx context.Context, q booking.AvailabilityQuery, version int64, slots []booking.Slot)
}

type Handler struct {
	engine *booking.Engine
	logger *slog.Logger
	secret string
	cache  AvailabilityCache
}

// NewHandler wires the booking API. secret may be empty (development), cache may be nil.
func NewHandler(engine *booking.Engine, logger *slog.Logger, secret string, cache AvailabilityCache) *Handler {
	return &Handler{engine: engine, logger: logger, secret: secret, cache: cache}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/appointments", h.Book)
	mux.HandleFunc("GET /api/v1/appointments/{id}", h.Get)
	mux.HandleFunc("POST /api/v1/appointments/{id}/reschedule", h.Reschedule)
	mux.HandleFunc("POST /api/v1/appointments/{id}/cancel", h.Cancel)
	mux.HandleFunc("POST /api/v1/appointments/{id}/confirm", h.lifecycle(h.engine.Confirm))
	mux.HandleFunc("POST /api/v1/appointments/{id}/check-in", h.lifecycle(h.engine.CheckIn))
	mux.HandleFunc("POST /api/v1/appointments/{id}/start", h.lifecycle(h.engine.Start))
	mux.HandleFunc("POST /api/v1/appointments/{id}/complete", h.Complete)
	mux.HandleFunc("POST /api/v1/appointments/{id}/no-show", h.lifecycle(h.engine.MarkNoShow))
	mux.HandleFunc("GET /api/v1/clients/{id}/appointments", h.ListClient)
	mux.HandleFunc("GET /api/v1/providers/{id}/appointments", h.ListProvider)
	mux.HandleFunc("GET /api/v1/providers/{id}/availability", h.Availability)
	mux.HandleFunc("POST /api/v1/providers/{id}/exceptions", h.AddException)
	mux.HandleFunc("DELETE /api/v1/providers/{id}/exceptions/{exceptionID}", h.RemoveException)
	mux.HandleFunc("POST /api/v1/providers/{id}/exceptions/{exceptionID}/approval", h.ApproveException)
	mux.HandleFunc("GET /api/v1/providers/{id}/calendar/stream", h.CalendarStream)
	mux.HandleFunc("PUT /api/v1/providers/{id}", h.PutProvider)
	mux.HandleFunc("PUT /api/v1/clients/{id}", h.PutClient)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, err := h.actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return actor, true
}

func (h *Handler) writeResult(w http.ResponseWriter, res booking.Result, err error, op string, created bool) {
	if err != nil {
		writeInfraError(w, h.logger, op, err)
		return
	}
	writeJSON(w, resultStatus(res.Success, res.Errors, created), res)
}

type bookRequest struct {
	ClientID              string   `json:"client_id"`
	ProviderID            string   `json:"provider_id"`
	ServiceType           string   `json:"service_type"`
	StartTime             string   `json:"start_time"`
	EndTime               string   `json:"end_time"`
	Notes                 string   `json:"notes"`
	RequestedProducts     []string `json:"requested_products"`
	AllowDurationOverride bool     `json:"allow_duration_override"`
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req bookRequest
	if !decode(w, r, &req) {
		return
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.ServiceType = strings.TrimSpace(req.ServiceType)
	if req.ClientID == "" || req.ProviderID == "" || req.ServiceType == "" {
		writeError(w, http.StatusBadRequest, "client_id, provider_id and service_type are required")
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

	res, err := h.engine.Book(r.Context(), booking.BookRequest{
		ClientID:              req.ClientID,
		ProviderID:            req.ProviderID,
		ServiceType:           model.ServiceType(req.ServiceType),
		StartTime:             start,
		EndTime:               end,
		Notes:                 req.Notes,
		RequestedProducts:     req.RequestedProducts,
		AllowDurationOverride: req.AllowDurationOverride,
		IdempotencyKey:        strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
		BookedBy:              actor,
	})
	h.writeResult(w, res, err, "book appointment", true)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}
	a, err := h.engine.GetAppointment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeQueryError(w, h.logger, "get appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type rescheduleRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
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
	res, err := h.engine.Reschedule(r.Context(), booking.RescheduleRequest{
		AppointmentID: r.PathValue("id"),
		NewStartTime:  start,
		NewEndTime:    end,
		Reason:        strings.TrimSpace(req.Reason),
		RequestedBy:   actor,
	})
	h.writeResult(w, res, err, "reschedule appointment", true)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.Cancel(r.Context(), booking.CancelRequest{
		AppointmentID: r.PathValue("id"),
		Reason:        strings.TrimSpace(req.Reason),
		CancelledBy:   actor,
	})
	h.writeResult(w, res, err, "cancel appointment", false)
}

type completeRequest struct {
	ProductsUsed []model.ProductUsage `json:"products_used"`
	Notes        string               `json:"notes"`
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if actor == model.ActorClient {
		writeError(w, http.StatusForbidden, "only staff can complete appointments")
		return
	}
	var req completeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.Complete(r.Context(), booking.CompleteRequest{
		AppointmentID: r.PathValue("id"),
		ProductsUsed:  req.ProductsUsed,
		Notes:         req.Notes,
	})
	h.writeResult(w, res, err, "complete appointment", false)
}

// lifecycle adapts a single-id status transition into a handler. Confirm is
// open to clients; the rest are staff actions.
func (h *Handler) lifecycle(op func(context.Context, string) (booking.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.authorize(w, r)
		if !ok {
			return
		}
		if actor == model.ActorClient && !strings.HasSuffix(r.URL.Path, "/confirm") {
			writeError(w, http.StatusForbidden, "only staff can change this status")
			return
		}
		res, err := op(r.Context(), r.PathValue("id"))
		h.writeResult(w, res, err, "change appointment status", false)
	}
}

func (h *Handler) ListClient(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	appts, err := h.engine.ListClientAppointments(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeQueryError(w, h.logger, "list client appointments", err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	writeJSON(w, http.StatusOK, appts)
}

func (h *Handler) ListProvider(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}
	from, to, ok := rangeParams(w, r)
	if !ok {
		return
	}
	appts, err := h.engine.ListProviderAppointments(r.Context(), r.PathValue("id"), from, to)
	if err != nil {
		writeQueryError(w, h.logger, "list provider appointments", err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	writeJSON(w, http.StatusOK, appts)
}

// rangeParams reads from/to as RFC3339 or YYYY-MM-DD; to defaults to one day after from.
func rangeParams(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from, ok := parseDay(q.Get("from"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid from")
		return time.Time{}, time.Time{}, false
	}
	to := from.AddDate(0, 0, 1)
	if raw := q.Get("to"); raw != "" {
		if to, ok = parseDay(raw); !ok {
			writeError(w, http.StatusBadRequest, "invalid to")
			return time.Time{}, time.Time{}, false
		}
	}
	return from, to, true
}

func parseDay(raw string) (time.Time, bool) {
	if t, ok := parseTime(raw); ok {
		return t, true
	}
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	return t, err == nil
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}
	from, to, ok := rangeParams(w, r)
	if !ok {
		return
	}
	q := booking.AvailabilityQuery{
		ProviderID:  r.PathValue("id"),
		ServiceType: model.ServiceType(strings.TrimSpace(r.URL.Query().Get("service_type"))),
		StartDate:   from,
		EndDate:     to,
	}
	var version int64
	if h.cache != nil {
		slots, v, hit := h.cache.Get(r.Context(), q)
		if hit {
			writeJSON(w, http.StatusOK, slots)
			return
		}
		version = v
	}
	slots, err := h.engine.GetProviderAvailability(r.Context(), q)
	if err != nil {
		writeQueryError(w, h.logger, "get provider availability", err)
		return
	}
	if slots == nil {
		slots = []booking.Slot{}
	}
	if h.cache != nil {
		h.cache.Set(r.Context(), q, version, slots)
	}
	writeJSON(w, http.StatusOK, slots)
}
