package gateway

import (
	"net/http"

	"github.com/pquerna/otp/totp"
)

// totpHeader carries the one-time code on config mutation requests.
const totpHeader = "X-Admin-TOTP"

// TOTPGuard authorizes config mutation endpoints with a TOTP code.
// An empty secret disables the check for local development.
type TOTPGuard struct {
	secret string
}

// NewTOTPGuard creates a guard for the given shared secret.
func NewTOTPGuard(secret string) *TOTPGuard {
	return &TOTPGuard{secret: secret}
}

// Authorize validates the request's TOTP code, writing a 401 response and
// returning false when it is missing or wrong.
func (g *TOTPGuard) Authorize(w http.ResponseWriter, r *http.Request) bool {
	if g.secret == "" {
		return true
	}
	code := r.Header.Get(totpHeader)
	if code == "" || !totp.Validate(code, g.secret) {
		writeError(w, http.StatusUnauthorized, "valid "+totpHeader+" code required")
		return false
	}
	return true
}
