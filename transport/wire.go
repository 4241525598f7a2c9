package transport

import "github.com/MrEthical07/goPortal/session"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token        string            `json:"token,omitempty"`
	User         *session.Identity `json:"user,omitempty"`
	Requires2FA  bool              `json:"requires2FA,omitempty"`
	SessionToken string            `json:"sessionToken,omitempty"`
}

type completeLoginRequest struct {
	SessionToken string `json:"sessionToken"`
	Code         string `json:"code"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type statusResponse struct {
	Enabled *bool `json:"enabled"`
}

type setupResponse struct {
	QRCode         string `json:"qrCode"`
	ManualEntryKey string `json:"manualEntryKey"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// LoginResult is the outcome of a credential or second-factor verification.
// Exactly one of Token and ChallengeToken is set.
type LoginResult struct {
	Token          string
	User           session.Identity
	ChallengeToken string
}

// RequiresSecondFactor reports whether the backend asked for a TOTP code.
func (r LoginResult) RequiresSecondFactor() bool {
	return r.Token == "" && r.ChallengeToken != ""
}

// SetupMaterial is the enrollment material returned by setup.
type SetupMaterial struct {
	QRCode         string
	ManualEntryKey string
}
