package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/maxpert/reactivator/cdc"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// Acquirer produces the bootstrap snapshot
type Acquirer interface {
	Acquire(ctx context.Context, labels []string) (*cdc.AcquireResult, error)
}

// PollingStatus reports on the polling scheduler
type PollingStatus interface {
	Started() bool
	LastTick() *cdc.TickResult
	ConsecutiveFailures() int64
}

// CursorReader reports the cursor in use
type CursorReader interface {
	Current() string
}

// Handlers serves the reactivator's HTTP endpoints
type Handlers struct {
	acquirer Acquirer
	polling  PollingStatus
	cursors  CursorReader
}

// NewHandlers creates the handler set
func NewHandlers(acquirer Acquirer, polling PollingStatus, cursors CursorReader) *Handlers {
	return &Handlers{
		acquirer: acquirer,
		polling:  polling,
		cursors:  cursors,
	}
}

// HandleAcquire runs the bootstrap for the requested node labels and starts
// polling on success
func (h *Handlers) HandleAcquire(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	req, err := decodeAcquire(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
		return
	}

	log.Info().Strs("labels", req.NodeLabels).Msg("Acquire requested")

	result, err := h.acquirer.Acquire(r.Context(), req.NodeLabels)
	if errors.Is(err, cdc.ErrNoLabels) {
		writeError(w, http.StatusBadRequest, err.Error(), "no_labels")
		return
	}
	if err != nil {
		log.Error().Err(err).Strs("labels", req.NodeLabels).Msg("Bootstrap failed")
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// decodeAcquire reads a JSON body, or a form body carrying repeated
// nodeLabels (or nodeLabels[]) fields
func decodeAcquire(r *http.Request) (AcquireRequest, error) {
	var req AcquireRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return req, errors.New("invalid form: " + err.Error())
		}
		req.NodeLabels = append(append([]string{}, r.PostForm["nodeLabels"]...), r.PostForm["nodeLabels[]"]...)
		return req, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, errors.New("request body is required")
		}
		return req, errors.New("invalid JSON: " + err.Error())
	}
	return req, nil
}

// HandleHealth reports polling state and the cursor in use. A failing
// scheduler is reported as degraded but still answers 200.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Polling: h.polling.Started(),
		Cursor:  h.cursors.Current(),
	}

	if last := h.polling.LastTick(); last != nil {
		tick := &TickStatus{
			ID:                  last.ID,
			OK:                  last.OK(),
			Rows:                last.Rows,
			Published:           last.Published,
			DurationMs:          last.Duration.Milliseconds(),
			ConsecutiveFailures: h.polling.ConsecutiveFailures(),
		}
		if last.Err != nil {
			tick.Error = last.Err.Error()
			resp.Status = "degraded"
		}
		resp.LastTick = tick
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response with the given status code
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
