package http

import (
	"net/http"
	"strings"

	"hisab/internal/log"
	"hisab/internal/session"
)

type groupRequest struct {
	Name string `json:"name"`
}

// userRef names a user by id or by e-mail. Exactly one must be set.
type userRef struct {
	UserID int64  `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

func (u userRef) validate() error {
	hasID, hasEmail := u.UserID > 0, strings.TrimSpace(u.Email) != ""
	if hasID == hasEmail {
		return badRequest{"exactly one of user_id or email is required"}
	}
	return nil
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request, sess session.Session) {
	groups, err := s.svc.Groups.ListUserGroups(r.Context(), sess.UserID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	out := make([]groupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, newGroupView(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request, sess session.Session) {
	var req groupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	g, err := s.svc.Groups.CreateGroup(r.Context(), sess.UserID, sanitizeInput(req.Name))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newGroupView(g))
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request, sess session.Session) {
	groupID, err := pathID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	members, err := s.svc.Groups.ListMembers(r.Context(), sess.UserID, groupID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	out := make([]memberView, 0, len(members))
	for _, m := range members {
		out = append(out, memberView{UserID: m.UserID, Name: m.Name, Email: m.Email, Role: m.Role, JoinedAt: m.JoinedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request, sess session.Session) {
	groupID, err := pathID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	var req userRef
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if req.UserID <= 0 {
		respondError(r.Context(), w, badRequest{"user_id is required"})
		return
	}
	if err := s.svc.Groups.AddMember(r.Context(), sess.UserID, groupID, req.UserID); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request, sess session.Session) {
	groupID, err := pathID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	deleted, err := s.svc.Groups.RemoveMember(r.Context(), sess.UserID, groupID, userID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipChange{GroupDeleted: deleted})
}

// membershipChange reports whether removing a member emptied, and so
// deleted, the group.
type membershipChange struct {
	GroupDeleted bool `json:"group_deleted"`
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request, sess session.Session) {
	groupID, err := pathID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	deleted, err := s.svc.Groups.LeaveGroup(r.Context(), groupID, sess.UserID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipChange{GroupDeleted: deleted})
}

func (s *Server) handleSendGroupInvite(w http.ResponseWriter, r *http.Request, sess session.Session) {
	groupID, err := pathID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	var req userRef
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if err := req.validate(); err != nil {
		respondError(r.Context(), w, err)
		return
	}

	var id int64
	if req.UserID > 0 {
		id, err = s.svc.Groups.SendGroupInvite(r.Context(), sess.UserID, groupID, req.UserID)
	} else {
		id, err = s.svc.Groups.SendGroupInviteByEmail(r.Context(), sess.UserID, groupID, req.Email)
	}
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleListGroupInvites(w http.ResponseWriter, r *http.Request, sess session.Session) {
	status, err := parseStatus(r)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	invites, err := s.svc.Groups.ListGroupInvites(r.Context(), sess.UserID, status)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	out := make([]groupInviteView, 0, len(invites))
	for _, i := range invites {
		out = append(out, groupInviteView{
			ID: i.ID, GroupID: i.GroupID, InviterID: i.InviterID, InviteeID: i.InviteeID,
			Status: i.Status, CreatedAt: i.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": out})
}

type resolution struct {
	Resolved bool `json:"resolved"`
}

// writeResolution reports an accept or decline. An invite that was unknown
// or no longer pending is a conflict.
func writeResolution(w http.ResponseWriter, ok bool) {
	status := http.StatusOK
	if !ok {
		status = http.StatusConflict
	}
	writeJSON(w, status, resolution{Resolved: ok})
}

func (s *Server) handleResolveGroupInvite(accept bool) sessionHandler {
	op := log.OpDecline
	if accept {
		op = log.OpAccept
	}
	return func(w http.ResponseWriter, r *http.Request, sess session.Session) {
		id, err := pathID(r, "id")
		if err != nil {
			respondError(r.Context(), w, err)
			return
		}
		resolve := s.svc.Groups.DeclineGroupInvite
		if accept {
			resolve = s.svc.Groups.AcceptGroupInvite
		}
		ok, err := resolve(r.Context(), sess.UserID, id)
		if err != nil {
			respondError(r.Context(), w, err)
			return
		}
		log.FromContext(r.Context()).InfoContext(r.Context(), "Group invite resolved",
			log.NewFields().WithInvite(id, "group").WithOperation(op).ToSlice()...)
		writeResolution(w, ok)
	}
}
