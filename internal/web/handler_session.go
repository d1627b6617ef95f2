package web

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/vbonduro/stocktake/internal/domain"
	"github.com/vbonduro/stocktake/internal/session"
)

type startSessionRequest struct {
	AreaID int64  `json:"area_id"`
	Method string `json:"method"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	sess, err := s.engine.StartSession(r.Context(), req.AreaID, domain.CountMethod(req.Method))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Status()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

type pauseSessionRequest struct {
	ReturnLocationID string `json:"return_location_id"`
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	var req pauseSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}

	if err := s.engine.PauseSession(r.Context(), req.ReturnLocationID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resumeSessionResponse struct {
	Session          *domain.StockSession `json:"session"`
	ReturnLocationID string               `json:"return_location_id,omitempty"`
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	areaID, err := parseID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid area id"})
		return
	}

	sess, returnLoc, err := s.engine.ResumeSession(r.Context(), areaID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resumeSessionResponse{Session: sess, ReturnLocationID: returnLoc})
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.CompleteSession(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	item, err := s.engine.Next()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	item, err := s.engine.Previous()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	item, err := s.engine.Skip()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

type recordDecisionRequest struct {
	AreaItemID int64           `json:"area_item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Method     string          `json:"method"`
	Note       string          `json:"note"`
	PhotoPath  string          `json:"photo_path"`
}

func (s *Server) handleRecordDecision(w http.ResponseWriter, r *http.Request) {
	var req recordDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	err := s.engine.RecordDecision(r.Context(), req.AreaItemID, req.Quantity,
		domain.CountMethod(req.Method), session.DecisionOpts{Note: req.Note, PhotoPath: req.PhotoPath})
	if err != nil {
		s.writeError(w, err)
		return
	}

	st, err := s.engine.Status()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

type setQuantityRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

type setQuantityResponse struct {
	AreaItemID int64           `json:"area_item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Band       domain.Band     `json:"band"`
}

func (s *Server) handleSetItemQuantity(w http.ResponseWriter, r *http.Request) {
	itemID, err := parseID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid item id"})
		return
	}

	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	band, err := s.engine.SetSessionItemQuantity(itemID, req.Quantity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, setQuantityResponse{AreaItemID: itemID, Quantity: req.Quantity, Band: band})
}

func (s *Server) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]int{"pending": s.engine.PendingCount()})
}

func (s *Server) handleAbandonPending(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.AbandonPendingUpdate(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
