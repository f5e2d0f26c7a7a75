package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sells-group/zakupki-realty/internal/model"
)

// DefaultRunsLimit caps GET /api/admin/runs when no limit is given.
const DefaultRunsLimit = 20

type batchRequest struct {
	UserID *int64 `json:"user_id"`
	Limit  int    `json:"limit"`
}

// runView is a stage run with its JSON columns decoded.
type runView struct {
	ID         string          `json:"id"`
	Stage      string          `json:"stage"`
	UserID     *int64          `json:"user_id,omitempty"`
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Errors     json.RawMessage `json:"errors"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

func newRunView(run *model.StageRun) runView {
	return runView{
		ID:         run.ID,
		Stage:      run.Stage,
		UserID:     run.UserID,
		Success:    run.Success,
		Message:    run.Message,
		Data:       rawOr(run.Data, "{}"),
		Errors:     rawOr(run.Errors, "[]"),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

func rawOr(s, def string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage(def)
	}
	return json.RawMessage(s)
}

func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.pipe.GetAdminStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load status counts")
		return
	}
	stats, err := s.pipe.GetStatistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":      status.Total,
		"by_status":  status.ByStatus,
		"summary":    status.Summary,
		"statistics": stats,
	})
}

func (s *Server) handleBatchExtract(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeResult(w, s.pipe.BatchExtract(stageContext(r), req.Limit))
}

func (s *Server) handleBatchLinks(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID, err := s.userID(r, req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, s.pipe.BatchLinks(stageContext(r), userID, req.Limit))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", DefaultRunsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.store.ListStageRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	out := make([]runView, len(runs))
	for i := range runs {
		out[i] = newRunView(&runs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out, "total": len(out)})
}
