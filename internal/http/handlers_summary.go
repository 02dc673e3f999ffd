package http

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"hisab/internal/analytics"
	"hisab/internal/session"
	"hisab/internal/services"
)

type budgetResult struct {
	amount decimal.Decimal
	set    bool
}

type dashboardView struct {
	Summary      summaryView `json:"summary"`
	Budget       budgetView  `json:"budget"`
	UnreadAlerts int         `json:"unread_alerts"`
}

// handleSummary builds the caller's dashboard. Summary, budget and unread
// count are loaded concurrently.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, sess session.Session) {
	ctx := r.Context()
	sumCh := services.Async(ctx, func(ctx context.Context) (analytics.Summary, error) {
		return s.svc.Analytics.BuildPersonalSummary(ctx, sess.UserID)
	})
	budgetCh := services.Async(ctx, func(ctx context.Context) (budgetResult, error) {
		amount, set, err := s.svc.Budgets.GetUserBudget(ctx, sess.UserID)
		return budgetResult{amount, set}, err
	})
	unreadCh := services.Async(ctx, func(ctx context.Context) (int, error) {
		return s.svc.Parents.UnreadCount(ctx, sess.UserID)
	})

	sum, budget, unread := <-sumCh, <-budgetCh, <-unreadCh
	for _, err := range []error{sum.Err, budget.Err, unread.Err} {
		if err != nil {
			respondError(ctx, w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, dashboardView{
		Summary:      newSummaryView(sum.Value),
		Budget:       newBudgetView(budget.Value.amount, budget.Value.set),
		UnreadAlerts: unread.Value,
	})
}

// requireMember fails with ErrNotMember unless the caller belongs to the
// group named in the path.
func (s *Server) requireMember(r *http.Request, sess session.Session) (int64, error) {
	groupID, err := pathID(r, "id")
	if err != nil {
		return 0, err
	}
	ok, err := s.svc.Groups.IsMember(r.Context(), groupID, sess.UserID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, services.ErrNotMember
	}
	return groupID, nil
}

func (s *Server) handleGroupSummary(w http.ResponseWriter, r *http.Request, sess session.Session) {
	groupID, err := s.requireMember(r, sess)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	gs, err := s.svc.Analytics.BuildGroupSummary(r.Context(), groupID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, newGroupSummaryView(gs))
}

// handleCompare contrasts two members. a defaults to the caller.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request, sess session.Session) {
	groupID, err := s.requireMember(r, sess)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	a, err := queryID(r, "a")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	b, err := queryID(r, "b")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if b == nil {
		respondError(r.Context(), w, badRequest{"b is required"})
		return
	}
	if a == nil {
		a = &sess.UserID
	}
	window, err := parseWindow(r)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	c, err := s.svc.Analytics.CompareMembers(r.Context(), groupID, *a, *b, window)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, newComparisonView(c))
}

func (s *Server) handleChildSummary(w http.ResponseWriter, r *http.Request, sess session.Session) {
	childID, err := pathID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	sum, err := s.svc.Analytics.ChildSummary(r.Context(), sess.UserID, childID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryView(sum))
}
