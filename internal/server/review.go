package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/model"
)

type decisionRequest struct {
	UserID    *int64             `json:"user_id"`
	RegNumber string             `json:"reg_number"`
	Stage     int                `json:"stage"`
	Decision  model.DecisionKind `json:"decision"`
	Comment   *string            `json:"comment"`
}

type overrideRequest struct {
	UserID    *int64 `json:"user_id"`
	RegNumber string `json:"reg_number"`
	FieldName string `json:"field_name"`
	Value     string `json:"value"`
}

func (s *Server) handleSaveDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID, err := s.userID(r, req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.RegNumber = strings.TrimSpace(req.RegNumber)
	switch {
	case req.RegNumber == "":
		writeError(w, http.StatusBadRequest, "reg_number is required")
		return
	case req.Stage < model.ReviewIntake:
		writeError(w, http.StatusBadRequest, "stage must be positive")
		return
	case !req.Decision.Valid():
		writeError(w, http.StatusBadRequest, "unknown decision")
		return
	}

	d := &model.Decision{
		UserID:    userID,
		RegNumber: req.RegNumber,
		Stage:     req.Stage,
		Decision:  req.Decision,
		Comment:   req.Comment,
	}
	if err := s.store.SaveDecision(r.Context(), d); err != nil {
		zap.L().Error("server: save decision failed",
			zap.String("reg_number", req.RegNumber),
			zap.Int("stage", req.Stage),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to save decision")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "decision": d.Decision})
}

// handleSaveOverride stores one override. A blank value clears it.
func (s *Server) handleSaveOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID, err := s.userID(r, req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.RegNumber = strings.TrimSpace(req.RegNumber)
	if req.RegNumber == "" {
		writeError(w, http.StatusBadRequest, "reg_number is required")
		return
	}
	if !model.IsOverridableField(req.FieldName) {
		writeError(w, http.StatusBadRequest, "field "+req.FieldName+" cannot be overridden")
		return
	}

	ctx := r.Context()
	if strings.TrimSpace(req.Value) == "" {
		if err := s.store.DeleteOverride(ctx, userID, req.RegNumber, req.FieldName); err != nil {
			zap.L().Error("server: clear override failed", zap.String("reg_number", req.RegNumber), zap.Error(err))
			writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "failed to clear override"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "cleared " + req.FieldName})
		return
	}

	o := &model.Override{
		UserID:    userID,
		RegNumber: req.RegNumber,
		FieldName: req.FieldName,
		Value:     strings.TrimSpace(req.Value),
	}
	if err := s.store.UpsertOverride(ctx, o); err != nil {
		zap.L().Error("server: save override failed", zap.String("reg_number", req.RegNumber), zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "failed to save override"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "saved " + o.FieldName + " = " + o.Value})
}

func (s *Server) handleGetOverrides(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	overrides, err := s.store.GetOverrides(r.Context(), userID, chi.URLParam(r, "reg_number"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load overrides")
		return
	}
	if overrides == nil {
		overrides = map[string]string{}
	}
	writeJSON(w, http.StatusOK, overrides)
}

func (s *Server) handleRecordListings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reg := chi.URLParam(r, "reg_number")
	rec, err := s.store.GetRecord(ctx, reg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	items, err := s.store.GetListings(ctx, reg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load listings")
		return
	}
	if items == nil {
		items = []model.Listing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reg_number":  reg,
		"status":      rec.Status,
		"two_gis_url": rec.TwoGISURL,
		"listings":    items,
		"total":       len(items),
	})
}
