package http

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"hisab/internal/core"
	"hisab/internal/session"
)

type expenseRequest struct {
	Category string `json:"category"`
	// Amount accepts "12.50" or "12,50".
	Amount string `json:"amount"`
	// Date is YYYY-MM-DD and defaults to today.
	Date    string `json:"date"`
	Note    string `json:"note"`
	GroupID *int64 `json:"group_id,omitempty"`
}

func (s *Server) parseExpense(req expenseRequest) (core.Expense, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.Expense{}, err
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = core.Today(s.now()).String()
	}
	return core.Expense{
		Category: sanitizeInput(req.Category),
		Amount:   amount,
		Date:     date,
		Note:     sanitizeInput(req.Note),
		GroupID:  req.GroupID,
	}, nil
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, sess session.Session) {
	groupID, err := queryID(r, "group_id")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	expenses, err := s.svc.Expenses.ListExpenses(r.Context(), sess.UserID, groupID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": newExpenseViews(expenses)})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, sess session.Session) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	e, err := s.parseExpense(req)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	id, err := s.svc.Expenses.CreateExpense(r.Context(), sess.UserID, e)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if req.GroupID != nil {
		respondError(r.Context(), w, badRequest{"group_id cannot be changed"})
		return
	}
	e, err := s.parseExpense(req)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	e.ID = id
	if err := s.svc.Expenses.UpdateExpense(r.Context(), sess.UserID, e); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if err := s.svc.Expenses.DeleteExpense(r.Context(), sess.UserID, id); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type budgetRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request, sess session.Session) {
	amount, set, err := s.svc.Budgets.GetUserBudget(r.Context(), sess.UserID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBudgetView(amount, set))
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request, sess session.Session) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if err := s.svc.Budgets.SetUserBudget(r.Context(), sess.UserID, req.Amount); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBudgetView(req.Amount, true))
}

func (s *Server) handleGetGroupBudget(w http.ResponseWriter, r *http.Request, sess session.Session) {
	groupID, err := pathID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	amount, set, err := s.svc.Budgets.GetGroupBudget(r.Context(), sess.UserID, groupID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBudgetView(amount, set))
}

func (s *Server) handleSetGroupBudget(w http.ResponseWriter, r *http.Request, sess session.Session) {
	groupID, err := pathID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if err := s.svc.Budgets.SetGroupBudget(r.Context(), sess.UserID, groupID, req.Amount); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBudgetView(req.Amount, true))
}
