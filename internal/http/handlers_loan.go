package http

import (
	"net/http"
	"time"

	"paghetta/internal/core"
)

type createLoanRequest struct {
	ChildID           int64  `json:"child_id"`
	PurchaseRequestID int64  `json:"purchase_request_id"`
	TotalAmount       string `json:"total_amount"`
	InstallmentCount  int    `json:"installment_count"`
}

type loanResponse struct {
	Loan         loanView          `json:"loan"`
	Installments []installmentView `json:"installments"`
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	total, err := parseAmount(req.TotalAmount)
	if err != nil {
		respondError(w, r, err)
		return
	}

	loan, err := s.loans.CreateLoan(r.Context(), req.ChildID, req.PurchaseRequestID, total, req.InstallmentCount)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.invalidateOverview(req.ChildID)
	respondJSON(w, http.StatusCreated, toLoanView(loan))
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := int64Param(r, "loanID")
	if err != nil {
		badRequest(w, "invalid loan id")
		return
	}

	loan, installments, err := s.loans.GetLoan(r.Context(), loanID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	today := time.Now()
	resp := loanResponse{
		Loan:         toLoanView(loan),
		Installments: make([]installmentView, len(installments)),
	}
	for i, inst := range installments {
		resp.Installments[i] = toInstallmentView(inst, today)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	childID, err := int64Param(r, "childID")
	if err != nil {
		badRequest(w, "invalid child id")
		return
	}

	loans, err := s.loans.ListLoans(r.Context(), childID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	views := make([]loanView, len(loans))
	for i := range loans {
		views[i] = toLoanView(&loans[i])
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleCancelLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := int64Param(r, "loanID")
	if err != nil {
		badRequest(w, "invalid loan id")
		return
	}

	if err := s.loans.CancelLoan(r.Context(), loanID); err != nil {
		respondError(w, r, err)
		return
	}

	loan, _, err := s.loans.GetLoan(r.Context(), loanID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.invalidateOverview(loan.ChildID)
	respondJSON(w, http.StatusOK, toLoanView(loan))
}

type payInstallmentRequest struct {
	PaidFrom string `json:"paid_from"`
}

func (s *Server) handlePayInstallment(w http.ResponseWriter, r *http.Request) {
	installmentID, err := int64Param(r, "installmentID")
	if err != nil {
		badRequest(w, "invalid installment id")
		return
	}
	var req payInstallmentRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	paidFrom := core.PaymentSource(req.PaidFrom)
	switch paidFrom {
	case core.PaidFromAllowance, core.PaidFromManual, core.PaidFromGift:
	default:
		badRequest(w, "paid_from must be one of allowance, manual, gift")
		return
	}

	loan, err := s.loans.PayInstallment(r.Context(), installmentID, paidFrom)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.invalidateOverview(loan.ChildID)
	respondJSON(w, http.StatusOK, toLoanView(loan))
}
