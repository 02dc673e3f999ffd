package http

import (
	"net/http"

	"hisab/internal/session"
)

type parentInviteRequest struct {
	ChildID int64  `json:"child_id,omitempty"`
	Email   string `json:"email,omitempty"`
}

type alertRequest struct {
	ToUserID int64  `json:"to_user_id"`
	Message  string `json:"message"`
}

func (s *Server) handleSendParentInvite(w http.ResponseWriter, r *http.Request, sess session.Session) {
	var req parentInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	ref := userRef{UserID: req.ChildID, Email: req.Email}
	if err := ref.validate(); err != nil {
		respondError(r.Context(), w, badRequest{"exactly one of child_id or email is required"})
		return
	}

	var (
		id  int64
		err error
	)
	if ref.UserID > 0 {
		id, err = s.svc.Parents.SendParentInvite(r.Context(), sess.UserID, ref.UserID)
	} else {
		id, err = s.svc.Parents.SendParentInviteByEmail(r.Context(), sess.UserID, ref.Email)
	}
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// handleListSentParentInvites lists the invites the calling parent sent.
func (s *Server) handleListSentParentInvites(w http.ResponseWriter, r *http.Request, sess session.Session) {
	invites, err := s.svc.Parents.ListSentParentInvites(r.Context(), sess.UserID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": newParentInviteViews(invites)})
}

// handleListParentInvites lists the invites addressed to the calling child.
func (s *Server) handleListParentInvites(w http.ResponseWriter, r *http.Request, sess session.Session) {
	status, err := parseStatus(r)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	invites, err := s.svc.Parents.ListParentInvites(r.Context(), sess.UserID, status)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": newParentInviteViews(invites)})
}

func (s *Server) handleResolveParentInvite(accept bool) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess session.Session) {
		id, err := pathID(r, "id")
		if err != nil {
			respondError(r.Context(), w, err)
			return
		}
		resolve := s.svc.Parents.DeclineParentInvite
		if accept {
			resolve = s.svc.Parents.AcceptParentInvite
		}
		ok, err := resolve(r.Context(), sess.UserID, id)
		if err != nil {
			respondError(r.Context(), w, err)
			return
		}
		writeResolution(w, ok)
	}
}

func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request, sess session.Session) {
	children, err := s.svc.Parents.ListChildren(r.Context(), sess.UserID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"children": newUserViews(children)})
}

func (s *Server) handleListParents(w http.ResponseWriter, r *http.Request, sess session.Session) {
	parents, err := s.svc.Parents.ListParents(r.Context(), sess.UserID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"parents": newUserViews(parents)})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request, sess session.Session) {
	alerts, err := s.svc.Parents.ListAlerts(r.Context(), sess.UserID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	out := make([]alertView, 0, len(alerts))
	unread := 0
	for _, a := range alerts {
		if !a.Read {
			unread++
		}
		out = append(out, alertView{
			ID: a.ID, FromUserID: a.FromUserID, ToUserID: a.ToUserID, Type: a.Type,
			Message: a.Message, CreatedAt: a.CreatedAt, Read: a.Read,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": out, "unread": unread})
}

func (s *Server) handleSendAlert(w http.ResponseWriter, r *http.Request, sess session.Session) {
	var req alertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if req.ToUserID <= 0 {
		respondError(r.Context(), w, badRequest{"to_user_id is required"})
		return
	}
	id, err := s.svc.Parents.SendMessage(r.Context(), sess.UserID, req.ToUserID, sanitizeInput(req.Message))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if err := s.svc.Parents.MarkRead(r.Context(), sess.UserID, id); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if err := s.svc.Parents.DeleteAlert(r.Context(), sess.UserID, id); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
