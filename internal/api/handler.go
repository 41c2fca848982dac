package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gonkalabs/safeguard-go/internal/credential"
	"github.com/gonkalabs/safeguard-go/internal/redact"
)

const maxMessageBytes = 8 << 20

// Handler implements all HTTP endpoints.
type Handler struct {
	dispatcher *Dispatcher
}

// New creates a Handler around d.
func New(d *Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

// Register mounts routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/messages", h.message)
}

// ---------- endpoints ----------

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) message(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "could not read body")
		return
	}

	req, err := Decode(body)
	if err != nil {
		if errors.Is(err, ErrUnknownRequest) {
			writeErr(w, http.StatusBadRequest, ErrUnknownRequest.Error())
			return
		}
		writeErr(w, http.StatusBadRequest, "malformed message")
		return
	}

	resp, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		status, msg := classify(err)
		if status == http.StatusInternalServerError {
			slog.Error("api: request failed", "type", req.requestType(), "err", err)
		}
		writeErr(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// classify maps an error onto a status code and a client-safe message.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, credential.ErrIncorrectCredential), errors.Is(err, redact.ErrIncorrectCredential):
		return http.StatusForbidden, credential.ErrIncorrectCredential.Error()
	case errors.Is(err, ErrAuthRequired):
		return http.StatusUnauthorized, ErrAuthRequired.Error()
	case errors.Is(err, ErrPageNotFound), errors.Is(err, redact.ErrNotFound), errors.Is(err, redact.ErrClosed):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, credential.ErrEmptyCredential), errors.Is(err, credential.ErrSealed),
		errors.Is(err, ErrUnknownRequest), errors.Is(err, redact.ErrNoTarget):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
