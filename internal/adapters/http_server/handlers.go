package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"concierge/internal/app"
	"concierge/internal/catalog"
)

const maxTurnBody = 16 << 10

type Handlers struct {
	Sessions     *app.SessionRegistry
	Reservations *app.ReservationService
	Catalog      *catalog.Store

	// TurnsPerMinute limits POST .../turns per client IP; 0 is unlimited.
	TurnsPerMinute int
}

type problem struct {
	Type   string   `json:"type"`
	Title  string   `json:"title"`
	Status int      `json:"status"`
	Detail string   `json:"detail,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", h.healthz)
	s.mux.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Get("/{id}", h.getSession)
		r.With(TurnRateLimit(h.TurnsPerMinute)).Post("/{id}/turns", h.submitTurn)
		r.Delete("/{id}/turns/{attempt}", h.abandonTurn)
		r.Post("/{id}/ack", h.acknowledge)
		r.Post("/{id}/reservations", h.submitReservation)
	})
	s.mux.Get("/v1/catalog/properties", h.listProperties)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemErrors(w, status, title, detail, nil)
}

func writeProblemErrors(w http.ResponseWriter, status int, title, detail string, errs []string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	p := problem{Type: "about:blank", Title: title, Status: status, Detail: detail, Errors: errs}
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// writeCacheable answers 304 when the client already holds this version.
func writeCacheable(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write body")
	}
}

func (h *Handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	if h.Catalog.Current() == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Catalog Not Loaded", "no catalog snapshot yet")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*app.Session, bool) {
	s, err := h.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "session not found")
		return nil, false
	}
	return s, true
}

func (h *Handlers) createSession(w http.ResponseWriter, _ *http.Request) {
	s := h.Sessions.Create()
	w.Header().Set("Location", "/v1/sessions/"+s.ID())
	writeJSON(w, http.StatusCreated, s.View())
}

func (h *Handlers) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeCacheable(w, r, s.View())
}

type turnRequest struct {
	Text string `json:"text"`
}

func (h *Handlers) submitTurn(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req turnRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTurnBody)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "expected {\"text\": \"...\"}")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "text must not be empty")
		return
	}

	out := s.SubmitTurn(r.Context(), req.Text)
	switch out.State {
	case app.OutcomeBusy, app.OutcomeDiscarded:
		writeJSON(w, http.StatusConflict, out)
	default:
		writeJSON(w, http.StatusOK, out)
	}
}

func (h *Handlers) abandonTurn(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	attempt, err := strconv.ParseUint(chi.URLParam(r, "attempt"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Attempt", "attempt must be a positive integer")
		return
	}
	if !s.AbandonTurn(attempt) {
		writeProblem(w, http.StatusConflict, "Not In Flight", "attempt is not the turn in progress")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) acknowledge(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Acknowledge()
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handlers) submitReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Reservations.Submit(r.Context(), chi.URLParam(r, "id"))
	var nf *app.NotFillableError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, res)
	case errors.Is(err, app.ErrSessionNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "session not found")
	case errors.Is(err, app.ErrNothingToSubmit):
		writeProblem(w, http.StatusConflict, "Nothing To Submit", "the last turn did not produce a reservation")
	case errors.Is(err, app.ErrAlreadySubmitted):
		writeProblem(w, http.StatusConflict, "Already Submitted", "this result was already booked")
	case errors.As(err, &nf):
		writeProblemErrors(w, http.StatusUnprocessableEntity, "Reservation Not Ready", nf.Error(), nf.Errors)
	default:
		writeProblem(w, http.StatusBadGateway, "Booking Failed", "the booking service did not accept the reservation")
	}
}

func (h *Handlers) listProperties(w http.ResponseWriter, r *http.Request) {
	ix := h.Catalog.Current()
	if ix == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Catalog Not Loaded", "no catalog snapshot yet")
		return
	}
	w.Header().Set("X-Catalog-Generation", strconv.FormatUint(ix.Generation(), 10))
	writeCacheable(w, r, ix.AllProperties())
}
