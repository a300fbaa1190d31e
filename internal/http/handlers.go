package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"paghetta/internal/core"
	"paghetta/internal/services"
)

const overviewTransactionLimit = 10

func overviewKey(childID int64) string {
	return "child:" + strconv.FormatInt(childID, 10)
}

func (s *Server) invalidateOverview(childID int64) {
	s.overviewCache.Delete(overviewKey(childID))
}

type createChildRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateChild(w http.ResponseWriter, r *http.Request) {
	var req createChildRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		badRequest(w, "name is required")
		return
	}

	child, err := s.store.CreateChild(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toChildView(child))
}

func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := s.store.ListChildren(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	views := make([]childView, len(children))
	for i := range children {
		views[i] = toChildView(&children[i])
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetChild(w http.ResponseWriter, r *http.Request) {
	childID, err := int64Param(r, "childID")
	if err != nil {
		badRequest(w, "invalid child id")
		return
	}

	key := overviewKey(childID)
	if cached, ok := s.overviewCache.Get(key); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	ctx := r.Context()
	child, err := s.store.GetChild(ctx, childID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	txs, err := s.ledger.ListTransactions(ctx, childID, overviewTransactionLimit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	loans, err := s.loans.ListLoans(ctx, childID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	overview := childOverview{
		Child:        toChildView(child),
		Transactions: toTransactionViews(txs),
		Loans:        make([]loanView, len(loans)),
	}
	for i := range loans {
		overview.Loans[i] = toLoanView(&loans[i])
	}

	s.overviewCache.Set(key, overview)
	respondJSON(w, http.StatusOK, overview)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	childID, err := int64Param(r, "childID")
	if err != nil {
		badRequest(w, "invalid child id")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			badRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	txs, err := s.ledger.ListTransactions(r.Context(), childID, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTransactionViews(txs))
}

type postTransactionRequest struct {
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Pending     bool   `json:"pending"`
	GoalID      int64  `json:"goal_id"`
}

func (s *Server) handlePostTransaction(w http.ResponseWriter, r *http.Request) {
	childID, err := int64Param(r, "childID")
	if err != nil {
		badRequest(w, "invalid child id")
		return
	}
	var req postTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}

	tx, err := s.ledger.PostTransaction(r.Context(), childID, core.TransactionKind(req.Kind), amount, req.Description, req.Category, services.PostExtra{
		GoalID:  req.GoalID,
		Pending: req.Pending,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.invalidateOverview(childID)
	respondJSON(w, http.StatusCreated, toTransactionView(*tx))
}

type settleRequest struct {
	By string `json:"by"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleSettle(w, r, s.ledger.Approve)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleSettle(w, r, s.ledger.Reject)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request, settle func(ctx context.Context, transactionID, by string) (*core.Transaction, error)) {
	transactionID := chi.URLParam(r, "transactionID")
	if transactionID == "" {
		badRequest(w, "invalid transaction id")
		return
	}
	var req settleRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.By) == "" {
		badRequest(w, "by is required")
		return
	}

	tx, err := settle(r.Context(), transactionID, req.By)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.invalidateOverview(tx.ChildID)
	respondJSON(w, http.StatusOK, toTransactionView(*tx))
}

type transferRequest struct {
	FromChildID int64  `json:"from_child_id"`
	ToChildID   int64  `json:"to_child_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type transferResponse struct {
	Debit  transactionView `json:"debit"`
	Credit transactionView `json:"credit"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.FromChildID == req.ToChildID {
		badRequest(w, "cannot transfer to the same child")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	description := req.Description
	if strings.TrimSpace(description) == "" {
		description = fmt.Sprintf("Transfer from child %d to child %d", req.FromChildID, req.ToChildID)
	}

	debit, credit, err := s.ledger.Transfer(r.Context(), req.FromChildID, req.ToChildID, amount, description)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.invalidateOverview(req.FromChildID)
	s.invalidateOverview(req.ToChildID)
	respondJSON(w, http.StatusCreated, transferResponse{
		Debit:  toTransactionView(*debit),
		Credit: toTransactionView(*credit),
	})
}
