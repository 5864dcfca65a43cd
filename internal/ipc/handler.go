// Package ipc provides the HTTP API for the Caseflow engine.
package ipc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/atlasprocure/caseflow/internal/domain"
	"github.com/atlasprocure/caseflow/internal/engine"
)

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Engine *engine.Engine
}

// ResumeRequest is the body for POST /api/v1/case/{caseID}/resume.
type ResumeRequest struct {
	Decision     string         `json:"decision"`
	Reason       string         `json:"reason,omitempty"`
	EditedFields map[string]any `json:"edited_fields,omitempty"`
	DecidedBy    string         `json:"decided_by,omitempty"`
}

// RunResponse is the outcome of a run or resume call.
type RunResponse struct {
	State      *domain.CaseState `json:"state"`
	Halt       domain.HaltReason `json:"halt"`
	GateReason string            `json:"gate_reason,omitempty"`
}

// CostSummary is the response for GET /api/v1/case/{caseID}/cost.
type CostSummary struct {
	Budget domain.BudgetState `json:"budget"`
	Deltas []domain.CostDelta `json:"deltas"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateCase handles POST /api/v1/case.
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var req engine.StartCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.Intent == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "intent is required"})
		return
	}

	state, err := h.Engine.StartCase(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

// GetCase handles GET /api/v1/case/{caseID}.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	state, err := h.Engine.GetCase(r.Context(), r.PathValue("caseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// RunCase handles POST /api/v1/case/{caseID}/run.
func (h *Handler) RunCase(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.Engine.Run(r.Context(), r.PathValue("caseID"))
	if err != nil && outcome == nil {
		writeError(w, err)
		return
	}
	// A max-iterations halt carries both an outcome and an error; the
	// outcome is the more useful response.
	writeJSON(w, http.StatusOK, RunResponse{
		State:      outcome.State,
		Halt:       outcome.Halt,
		GateReason: outcome.GateReason,
	})
}

// ResumeCase handles POST /api/v1/case/{caseID}/resume.
func (h *Handler) ResumeCase(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.Decision == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "decision is required"})
		return
	}

	decision := domain.HumanDecision{
		Decision:     domain.Decision(req.Decision),
		Reason:       req.Reason,
		EditedFields: req.EditedFields,
		DecidedBy:    req.DecidedBy,
		Timestamp:    time.Now().Unix(),
	}
	outcome, err := h.Engine.Resume(r.Context(), r.PathValue("caseID"), decision)
	if err != nil && outcome == nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RunResponse{
		State:      outcome.State,
		Halt:       outcome.Halt,
		GateReason: outcome.GateReason,
	})
}

// ListActivity handles GET /api/v1/case/{caseID}/activity?since_seq=N.
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	sinceSeq := int64(0)
	if s := r.URL.Query().Get("since_seq"); s != "" {
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			sinceSeq = parsed
		}
	}

	entries, err := h.Engine.Activity(r.Context(), r.PathValue("caseID"), sinceSeq)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetCost handles GET /api/v1/case/{caseID}/cost.
func (h *Handler) GetCost(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("caseID")
	state, err := h.Engine.GetCase(r.Context(), caseID)
	if err != nil {
		writeError(w, err)
		return
	}
	deltas, err := h.Engine.CostDeltas(r.Context(), caseID)
	if err != nil {
		writeError(w, err)
		return
	}
	if deltas == nil {
		deltas = []domain.CostDelta{}
	}
	writeJSON(w, http.StatusOK, CostSummary{Budget: state.Budget, Deltas: deltas})
}

// StreamActivity handles GET /api/v1/case/{caseID}/activity/stream (SSE).
func (h *Handler) StreamActivity(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("caseID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: 500, Message: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	entries, err := h.Engine.Activity(r.Context(), caseID, 0)
	if err != nil {
		writeSSEError(w, flusher, err)
		return
	}
	lastSeq := int64(0)
	for _, entry := range entries {
		writeSSEEvent(w, flusher, entry)
		lastSeq = entry.SeqNo
	}

	ctx := r.Context()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			newEntries, err := h.Engine.Activity(ctx, caseID, lastSeq)
			if err != nil {
				return
			}
			for _, entry := range newEntries {
				writeSSEEvent(w, flusher, entry)
				lastSeq = entry.SeqNo
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if engErr, ok := err.(*domain.EngineError); ok {
		status := http.StatusInternalServerError
		switch engErr.Code {
		case domain.ErrCaseNotFound.Code, domain.ErrSnapshotMissing.Code:
			status = http.StatusNotFound
		case domain.ErrDuplicateCase.Code, domain.ErrAlreadyResumed.Code:
			status = http.StatusConflict
		case domain.ErrBudgetExceeded.Code:
			status = http.StatusForbidden
		case domain.ErrInvalidTransition.Code, domain.ErrNotAwaitingHuman.Code,
			domain.ErrAwaitingHuman.Code, domain.ErrCaseAlreadyDone.Code,
			domain.ErrCaseRejected.Code:
			status = http.StatusUnprocessableEntity
		case domain.ErrDecisionInvalid.Code, domain.ErrInvalidStage.Code:
			status = http.StatusBadRequest
		}
		writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

func writeSSEEvent(w http.ResponseWriter, f http.Flusher, entry domain.ActivityEntry) {
	data, _ := json.Marshal(entry)
	fmt.Fprintf(w, "data: %s\n\n", data)
	f.Flush()
}

func writeSSEError(w http.ResponseWriter, f http.Flusher, err error) {
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
	f.Flush()
}
