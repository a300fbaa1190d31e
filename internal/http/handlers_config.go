package http

import (
	"net/http"
	"time"

	"paghetta/internal/core"
)

type allowanceRequest struct {
	Amount     string `json:"amount"`
	Frequency  string `json:"frequency"`
	DayOfWeek  int    `json:"day_of_week"`
	DayOfMonth int    `json:"day_of_month"`
}

type activateRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleGetAllowance(w http.ResponseWriter, r *http.Request) {
	childID, err := int64Param(r, "childID")
	if err != nil {
		badRequest(w, "invalid child id")
		return
	}
	cfg, err := s.allowances.GetConfig(r.Context(), childID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toAllowanceView(cfg, s.allowances.FrequencyDescription(cfg)))
}

func (s *Server) handleUpsertAllowance(w http.ResponseWriter, r *http.Request) {
	childID, err := int64Param(r, "childID")
	if err != nil {
		badRequest(w, "invalid child id")
		return
	}
	var req allowanceRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}

	cfg := &core.AllowanceConfig{
		ChildID:    childID,
		Amount:     amount,
		Frequency:  core.Frequency(req.Frequency),
		DayOfWeek:  req.DayOfWeek,
		DayOfMonth: req.DayOfMonth,
		IsActive:   true,
	}
	if err := s.allowances.UpsertConfig(r.Context(), cfg, time.Now()); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toAllowanceView(cfg, s.allowances.FrequencyDescription(cfg)))
}

func (s *Server) handleSetAllowanceActive(w http.ResponseWriter, r *http.Request) {
	childID, err := int64Param(r, "childID")
	if err != nil {
		badRequest(w, "invalid child id")
		return
	}
	var req activateRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := s.allowances.SetActive(r.Context(), childID, req.Active); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

type interestRequest struct {
	MonthlyRate       float64 `json:"monthly_rate"`
	CompoundFrequency string  `json:"compound_frequency"`
	MinimumBalance    string  `json:"minimum_balance"`
}

func (s *Server) handleGetInterest(w http.ResponseWriter, r *http.Request) {
	childID, err := int64Param(r, "childID")
	if err != nil {
		badRequest(w, "invalid child id")
		return
	}
	cfg, err := s.interest.GetConfig(r.Context(), childID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toInterestView(cfg))
}

func (s *Server) handleUpsertInterest(w http.ResponseWriter, r *http.Request) {
	childID, err := int64Param(r, "childID")
	if err != nil {
		badRequest(w, "invalid child id")
		return
	}
	var req interestRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	// A zero minimum balance is a valid choice, so an empty field is not an
	// error here.
	var minimum core.Money
	if req.MinimumBalance != "" {
		minimum, err = parseAmount(req.MinimumBalance)
		if err != nil {
			respondError(w, r, err)
			return
		}
	}

	cfg := &core.InterestConfig{
		ChildID:           childID,
		MonthlyRate:       core.Rate(req.MonthlyRate),
		CompoundFrequency: core.Frequency(req.CompoundFrequency),
		MinimumBalance:    minimum,
		IsActive:          true,
	}
	if err := s.interest.UpsertConfig(r.Context(), cfg); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toInterestView(cfg))
}

func (s *Server) handleSetInterestActive(w http.ResponseWriter, r *http.Request) {
	childID, err := int64Param(r, "childID")
	if err != nil {
		badRequest(w, "invalid child id")
		return
	}
	var req activateRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := s.interest.SetActive(r.Context(), childID, req.Active); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}
