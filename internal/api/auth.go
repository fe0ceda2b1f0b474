package api

import (
	"net/http"
	"time"

	"github.com/axstore/axstore/internal/app/auth"
)

// ─── Account API ────────────────────────────────────────────────────────────
// Registration, login, and the three-step admin-assisted password reset
// the login screen drives: start (confirm account), verify (check the
// admin-issued code), final (set the new password).

// handleRegister creates a storefront account.
// POST /api/auth/register {"name", "phone", "password", "confirm_password"}
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Phone           string `json:"phone"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	user, err := s.accounts.Register(r.Context(), req.Name, req.Phone, req.Password, req.ConfirmPassword)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{
		"name":  user.Name,
		"phone": user.Phone,
	})
}

// handleLogin checks credentials and issues the session cookie.
// POST /api/auth/login {"phone", "password"}
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	user, err := s.accounts.Login(r.Context(), req.Phone, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	setSessionCookie(w, s.sessions.Encode(user.Phone))
	writeOK(w, map[string]interface{}{
		"name":  user.Name,
		"phone": user.Phone,
	})
}

// handleLogout clears the session cookie.
// POST /api/auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w)
	writeOK(w, nil)
}

// handleResetStart confirms the account exists before prompting for a code.
// POST /api/auth/reset-start {"phone"}
func (s *Server) handleResetStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := s.accounts.StartReset(r.Context(), req.Phone); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

// handleResetVerify checks the admin-issued reset code.
// POST /api/auth/reset-verify {"phone", "reset_code"}
func (s *Server) handleResetVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone     string `json:"phone"`
		ResetCode string `json:"reset_code"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := s.accounts.VerifyReset(r.Context(), req.Phone, req.ResetCode); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

// handleResetFinal sets the new password and consumes the reset code.
// POST /api/auth/reset-final {"phone", "reset_code", "new_password", "confirm_new_password"}
func (s *Server) handleResetFinal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone              string `json:"phone"`
		ResetCode          string `json:"reset_code"`
		NewPassword        string `json:"new_password"`
		ConfirmNewPassword string `json:"confirm_new_password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := s.accounts.FinishReset(r.Context(), req.Phone, req.ResetCode, req.NewPassword, req.ConfirmNewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

// ─── Admin API ──────────────────────────────────────────────────────────────

// userView is one row in the admin user list (no password hash).
type userView struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"createdAt"`
}

func toUserView(u auth.User) userView {
	v := userView{Name: u.Name, Phone: u.Phone}
	if !u.CreatedAt.IsZero() {
		v.CreatedAt = u.CreatedAt.Format(time.RFC3339)
	}
	return v
}

// handleListUsers returns all registered accounts.
// GET /admin/users
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.accounts.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}
	writeOK(w, map[string]interface{}{"users": views})
}

// handleDeleteUser removes an account.
// POST /admin/delete-user {"phone"}
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := s.accounts.Delete(r.Context(), req.Phone); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

// handleGenerateResetCode issues a reset code for an account.
// POST /admin/generate-reset-code {"phone"}
func (s *Server) handleGenerateResetCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	code, err := s.accounts.GenerateResetCode(r.Context(), req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"code": code})
}
