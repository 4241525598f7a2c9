package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned when a bearer token is not a decodable JWT.
var ErrMalformedToken = errors.New("malformed token")

// PortalClaims is the claim set carried by portal bearer tokens.
type PortalClaims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Claims is the flattened, display-only view of a token.
type Claims struct {
	Subject   string
	Email     string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether the claims list role.
func (c Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Expired reports whether the token carries an expiry before now. Tokens
// without an exp claim never report expired.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Inspect decodes token without verifying its signature.
func Inspect(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" || strings.Count(token, ".") != 2 {
		return Claims{}, ErrMalformedToken
	}

	var pc PortalClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &pc); err != nil {
		return Claims{}, ErrMalformedToken
	}
	return flatten(&pc), nil
}

func flatten(pc *PortalClaims) Claims {
	out := Claims{
		Subject: pc.Subject,
		Email:   pc.Email,
	}
	if len(pc.Roles) > 0 {
		out.Roles = append([]string(nil), pc.Roles...)
	}
	if pc.IssuedAt != nil {
		out.IssuedAt = pc.IssuedAt.Time
	}
	if pc.ExpiresAt != nil {
		out.ExpiresAt = pc.ExpiresAt.Time
	}
	return out
}
