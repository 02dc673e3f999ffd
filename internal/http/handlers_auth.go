package http

import (
	"net/http"
	"strings"
	"time"

	"hisab/internal/core"
	"hisab/internal/log"
	"hisab/internal/session"
)

// sessionHandler is a handler that runs for an authenticated caller.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess session.Session)

// authed validates the bearer token and passes the caller's session to h.
// The session is also stored in the request context.
func (s *Server) authed(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="hisab"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.issuer.Parse(strings.TrimSpace(token))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="hisab", error="invalid_token"`)
			respondError(r.Context(), w, err)
			return
		}
		userID, _ := claims.UserID()

		sess := session.Session{UserID: userID, Name: claims.Name, Role: claims.Role, Mode: session.ModePersonal}
		if sess.IsParent() {
			sess.Mode = session.ModeParent
		}

		ctx := session.NewContext(r.Context(), sess)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, userID))
		h(w, r.WithContext(ctx), sess)
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registration struct {
	Name     string        `json:"name"`
	Email    string        `json:"email"`
	Password string        `json:"password"`
	Role     core.UserRole `json:"role"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userView  `json:"user"`
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, status int, u core.User) {
	token, exp, err := s.issuer.Issue(u)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, status, tokenResponse{Token: token, ExpiresAt: exp, User: newUserView(u)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registration
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if req.Role == "" {
		req.Role = core.UserRoleIndividual
	}
	u, err := s.svc.Users.Register(r.Context(), sanitizeInput(req.Name), req.Email, req.Password, req.Role)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "User registered",
		log.NewFields().WithUser(u.ID).WithOperation(log.OpCreate).ToSlice()...)
	s.issue(w, r, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	u, err := s.svc.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	s.issue(w, r, http.StatusOK, u)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, sess session.Session) {
	u, err := s.svc.Users.GetUser(r.Context(), sess.UserID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}
