package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// SessionCookie is the cookie carrying the logged-in account identity.
const SessionCookie = "session_user"

// ─── Session Codec ──────────────────────────────────────────────────────────
// The original worker stored the bare phone number in the cookie; anyone
// could forge a session. The value is now "phone|hmac-sha256(phone)" so a
// cookie only round-trips if this server minted it.

// SessionCodec signs and verifies session cookie values.
type SessionCodec struct {
	secret []byte
}

// NewSessionCodec creates a codec over the configured secret.
func NewSessionCodec(secret string) *SessionCodec {
	return &SessionCodec{secret: []byte(secret)}
}

func (c *SessionCodec) sign(phone string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(phone))
	return hex.EncodeToString(mac.Sum(nil))
}

// Encode produces the signed cookie value for an identity.
func (c *SessionCodec) Encode(phone string) string {
	return phone + "|" + c.sign(phone)
}

// Decode verifies a cookie value and returns the identity.
func (c *SessionCodec) Decode(value string) (string, bool) {
	phone, sig, found := strings.Cut(value, "|")
	if !found || phone == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(c.sign(phone))) {
		return "", false
	}
	return phone, true
}

// ─── Middleware ─────────────────────────────────────────────────────────────

// requireSession rejects requests without a valid session cookie.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"ok":      false,
				"message": "login required",
			})
			return
		}
		if _, ok := s.sessions.Decode(cookie.Value); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"ok":      false,
				"message": "login required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin additionally checks the configured admin password.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminPassword == "" || r.Header.Get("X-Admin-Password") != s.adminPassword {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{
				"ok":      false,
				"message": "admin access denied",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// setSessionCookie issues the login cookie.
func setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the login cookie.
func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
