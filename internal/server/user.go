package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/store"
)

type selectionRequest struct {
	UserID     *int64   `json:"user_id"`
	RegNumbers []string `json:"reg_numbers"`
}

type runListingsRequest struct {
	UserID  *int64 `json:"user_id"`
	TopN    int    `json:"top_n"`
	Details bool   `json:"details"`
}

// summary is the compact record shape of the user-facing lists.
type summary struct {
	RegNumber    string       `json:"reg_number"`
	Description  string       `json:"description"`
	InitialPrice *float64     `json:"initial_price"`
	Status       model.Status `json:"status"`
	PreparedAt   *time.Time   `json:"prepared_at,omitempty"`
	City         *string      `json:"city"`
	AreaMinM2    *float64     `json:"area_min_m2"`
	AreaMaxM2    *float64     `json:"area_max_m2"`
	Rooms        *string      `json:"rooms"`
	TwoGISURL    *string      `json:"two_gis_url,omitempty"`
	IsSelected   bool         `json:"is_selected"`
}

func (s *Server) summarize(ctx context.Context, recs []model.Record, selected map[string]bool) ([]summary, error) {
	out := make([]summary, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		ext, err := s.store.GetExtraction(ctx, rec.RegNumber)
		if err != nil {
			return nil, err
		}
		sm := summary{
			RegNumber:    rec.RegNumber,
			Description:  rec.Description,
			InitialPrice: rec.InitialPrice,
			Status:       rec.Status,
			PreparedAt:   rec.PreparedAt,
			TwoGISURL:    rec.TwoGISURL,
			IsSelected:   selected[rec.RegNumber],
		}
		if ext != nil {
			sm.City = ext.City
			sm.AreaMinM2 = ext.AreaMinM2
			sm.AreaMaxM2 = ext.AreaMaxM2
			sm.Rooms = ext.Rooms
		}
		out = append(out, sm)
	}
	return out, nil
}

func (s *Server) selectedSet(ctx context.Context, userID int64) (map[string]bool, error) {
	regs, err := s.store.ListSelections(ctx, userID)
	if err != nil {
		return nil, eris.Wrap(err, "server: list selections")
	}
	set := make(map[string]bool, len(regs))
	for _, reg := range regs {
		set[reg] = true
	}
	return set, nil
}

// handleAvailable lists records with a ready search URL and marks the ones
// the user has selected.
func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := s.userID(r, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.store.ListRecords(ctx, store.RecordFilter{Statuses: []model.Status{model.StatusURLReady}})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	selected, err := s.selectedSet(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load selections")
		return
	}
	out, err := s.summarize(ctx, recs, selected)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load extraction results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out, "total": len(out)})
}

func (s *Server) handleSelections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := s.userID(r, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	selected, err := s.selectedSet(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load selections")
		return
	}
	regs := make([]string, 0, len(selected))
	for reg := range selected {
		regs = append(regs, reg)
	}
	recs, err := s.store.GetRecords(ctx, regs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	out, err := s.summarize(ctx, recs, selected)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load extraction results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out, "total": len(out)})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	s.changeSelections(w, r, true)
}

func (s *Server) handleUnselect(w http.ResponseWriter, r *http.Request) {
	s.changeSelections(w, r, false)
}

// changeSelections adds or removes reg numbers and reports how many
// actually changed.
func (s *Server) changeSelections(w http.ResponseWriter, r *http.Request, add bool) {
	ctx := r.Context()
	var req selectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID, err := s.userID(r, req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	selected, err := s.selectedSet(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load selections")
		return
	}

	changed := 0
	for _, reg := range req.RegNumbers {
		reg = strings.TrimSpace(reg)
		if reg == "" || selected[reg] == add {
			continue
		}
		if add {
			err = s.store.AddSelection(ctx, userID, reg)
		} else {
			err = s.store.RemoveSelection(ctx, userID, reg)
		}
		if err != nil {
			zap.L().Warn("server: selection change failed", zap.String("reg_number", reg), zap.Bool("add", add), zap.Error(err))
			continue
		}
		selected[reg] = add
		changed++
	}

	total := 0
	for _, on := range selected {
		if on {
			total++
		}
	}
	resp := map[string]any{"status": "ok", "total_selected": total}
	if add {
		resp["added"] = changed
		resp["message"] = fmt.Sprintf("added %d records to the selection", changed)
	} else {
		resp["removed"] = changed
		resp["message"] = fmt.Sprintf("removed %d records from the selection", changed)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRunListings(w http.ResponseWriter, r *http.Request) {
	var req runListingsRequest
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
	writeResult(w, s.pipe.RunSelectedListingCollection(stageContext(r), userID, topN, req.Details))
}
