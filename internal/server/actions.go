package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/zakupki-realty/internal/model"
)

type ingestRequest struct {
	Limit int `json:"limit"`
}

type stageRequest struct {
	UserID     *int64   `json:"user_id"`
	Limit      int      `json:"limit"`
	RegNumbers []string `json:"reg_numbers"`
}

type listingsRequest struct {
	UserID     *int64   `json:"user_id"`
	TopN       int      `json:"top_n"`
	Limit      int      `json:"limit"`
	Details    bool     `json:"details"`
	RegNumbers []string `json:"reg_numbers"`
}

func (s *Server) handleStageView(w http.ResponseWriter, r *http.Request) {
	stage, err := strconv.Atoi(chi.URLParam(r, "stage"))
	if err != nil || stage < model.ReviewIntake {
		writeError(w, http.StatusBadRequest, "invalid stage")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := s.userID(r, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.views.StageView(r.Context(), userID, stage, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stage view")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stage":   stage,
		"records": rows,
		"total":   len(rows),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeResult(w, s.pipe.RunIngestion(stageContext(r), req.Limit))
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	req, userID, ok := s.stageRequest(w, r)
	if !ok {
		return
	}
	writeResult(w, s.pipe.RunExtraction(stageContext(r), userID, req.Limit, req.RegNumbers))
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	req, userID, ok := s.stageRequest(w, r)
	if !ok {
		return
	}
	writeResult(w, s.pipe.RunLinkGeneration(stageContext(r), userID, req.Limit, req.RegNumbers))
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	var req listingsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID, err := s.userID(r, req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	topN := req.TopN
	if topN <= 0 {
		topN = s.cfg.ListingsTopN
	}
	writeResult(w, s.pipe.RunListingCollection(stageContext(r), userID, topN, req.Limit, req.Details, req.RegNumbers))
}

func (s *Server) handleAddToStage2(w http.ResponseWriter, r *http.Request) {
	req, userID, ok := s.stageRequest(w, r)
	if !ok {
		return
	}
	if len(req.RegNumbers) == 0 {
		writeError(w, http.StatusBadRequest, "reg_numbers is required")
		return
	}

	added, res := s.pipe.AddToStage2(stageContext(r), userID, req.RegNumbers)
	if res == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "warning",
			"count":   0,
			"message": "no records were added",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"count":   added,
		"run_id":  res.RunID,
		"message": fmt.Sprintf("added %d records, extraction: %s", added, res.Message),
		"data":    res.Data,
		"errors":  res.Errors,
	})
}

// stageRequest decodes the shared {user_id, limit, reg_numbers} body and
// writes a 400 on failure.
func (s *Server) stageRequest(w http.ResponseWriter, r *http.Request) (stageRequest, int64, bool) {
	var req stageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, 0, false
	}
	userID, err := s.userID(r, req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, 0, false
	}
	return req, userID, true
}
