package backendtest

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/goPortal/session"
	"github.com/gin-gonic/gin"
)

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.track())

	r.POST("/auth/login", s.login)
	r.POST("/auth/2fa/login", s.completeLogin)

	authed := r.Group("/", s.requireToken())
	authed.GET("/auth/2fa/status", s.twoFactorStatus)
	authed.POST("/auth/2fa/setup", s.setupTwoFactor)
	authed.POST("/auth/2fa/verify", s.verifyTwoFactor)
	authed.POST("/auth/2fa/disable", s.disableTwoFactor)
	authed.GET("/users/me", s.currentUser)
	authed.PATCH("/users/me", s.updateProfile)
	authed.POST("/users/me/verification", s.requestVerification)
	authed.POST("/auth/logout", s.logout)
	authed.GET("/admin/users", s.adminUsers)

	return r
}

func (s *Server) track() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.Request.Method + " " + c.Request.URL.Path
		s.mu.Lock()
		s.calls[route]++
		hook := s.hooks[route]
		s.mu.Unlock()
		if hook != nil {
			hook()
		}
		c.Next()
	}
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		acc, token, err := s.authenticate(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Session expired. Please sign in again."})
			return
		}
		c.Set("account", acc)
		c.Set("token", token)
		c.Next()
	}
}

func accountFrom(c *gin.Context) *account {
	acc, _ := c.MustGet("account").(*account)
	return acc
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !s.limiter.allowed(email) {
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "Too many login attempts. Try again later.", "code": "rate_limited"})
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[email]
	var hash string
	if ok {
		hash = acc.passwordHash
	}
	s.mu.Unlock()

	if !ok || !passwordMatches(req.Password, hash) {
		s.limiter.fail(email)
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid email or password"})
		return
	}
	s.limiter.reset(email)

	s.mu.Lock()
	if acc.twoFactor {
		id, err := newChallengeID()
		if err != nil {
			s.mu.Unlock()
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not start verification"})
			return
		}
		s.challenges[id] = &challenge{email: email, expiresAt: s.now().Add(s.cfg.ChallengeTTL)}
		s.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"requires2FA": true, "sessionToken": id})
		return
	}
	token, err := s.issue(acc)
	identity := identityOf(acc)
	s.mu.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not create session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": identity})
}

func passwordMatches(password, hash string) bool {
	if hash == "" {
		return false
	}
	ok, err := verifyPassword(password, hash)
	return err == nil && ok
}

type completeLoginRequest struct {
	SessionToken string `json:"sessionToken"`
	Code         string `json:"code"`
}

func (s *Server) completeLogin(c *gin.Context) {
	var req completeLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[req.SessionToken]
	if !ok || s.now().After(ch.expiresAt) {
		delete(s.challenges, req.SessionToken)
		c.JSON(http.StatusGone, gin.H{"message": "Verification session expired. Please sign in again.", "code": "challenge_expired"})
		return
	}
	acc := s.accounts[ch.email]
	if acc == nil || !s.codeValid(req.Code, acc.totpSecret) {
		ch.attempts++
		if ch.attempts >= maxChallengeAttempts {
			delete(s.challenges, req.SessionToken)
			c.JSON(http.StatusGone, gin.H{"message": "Too many attempts. Please sign in again.", "code": "challenge_invalid"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid verification code", "code": "invalid_code"})
		return
	}

	delete(s.challenges, req.SessionToken)
	token, err := s.issue(acc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not create session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": identityOf(acc)})
}

func (s *Server) twoFactorStatus(c *gin.Context) {
	acc := accountFrom(c)
	s.mu.Lock()
	enabled := acc.twoFactor
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

func (s *Server) setupTwoFactor(c *gin.Context) {
	acc := accountFrom(c)
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc.twoFactor {
		c.JSON(http.StatusConflict, gin.H{"message": "Two-factor authentication is already enabled"})
		return
	}
	secret, err := newEnrollmentSecret()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not start two-factor setup"})
		return
	}
	acc.pendingSetup = secret
	c.JSON(http.StatusOK, gin.H{
		"qrCode":         provisionURI(acc.identity.Email, secret),
		"manualEntryKey": secret,
	})
}

type codeRequest struct {
	Code string `json:"code"`
}

func (s *Server) verifyTwoFactor(c *gin.Context) {
	acc := accountFrom(c)
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if acc.pendingSetup == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No two-factor setup in progress"})
		return
	}
	if !s.codeValid(req.Code, acc.pendingSetup) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid verification code", "code": "invalid_code"})
		return
	}
	acc.totpSecret = acc.pendingSetup
	acc.pendingSetup = ""
	acc.twoFactor = true
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) disableTwoFactor(c *gin.Context) {
	acc := accountFrom(c)
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !acc.twoFactor {
		c.JSON(http.StatusConflict, gin.H{"message": "Two-factor authentication is not enabled"})
		return
	}
	if !s.codeValid(req.Code, acc.totpSecret) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid verification code", "code": "invalid_code"})
		return
	}
	acc.totpSecret = ""
	acc.twoFactor = false
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) currentUser(c *gin.Context) {
	acc := accountFrom(c)
	s.mu.Lock()
	id := identityOf(acc)
	s.mu.Unlock()
	c.JSON(http.StatusOK, id)
}

func (s *Server) updateProfile(c *gin.Context) {
	acc := accountFrom(c)
	var patch session.IdentityPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	if patch.Email != nil && !strings.Contains(*patch.Email, "@") {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Email address is invalid"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.Email != nil && !strings.EqualFold(*patch.Email, acc.identity.Email) {
		if _, taken := s.accounts[strings.ToLower(*patch.Email)]; taken {
			c.JSON(http.StatusConflict, gin.H{"message": "Email address is already in use"})
			return
		}
		delete(s.accounts, strings.ToLower(acc.identity.Email))
		s.accounts[strings.ToLower(*patch.Email)] = acc
		unverified := false
		patch.AccountVerified = &unverified
	}
	acc.identity = patch.Apply(acc.identity)
	if s.cfg.EmptyProfileAck {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, identityOf(acc))
}

func (s *Server) requestVerification(c *gin.Context) {
	acc := accountFrom(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc.identity.AccountVerified {
		c.JSON(http.StatusConflict, gin.H{"message": "Account is already verified"})
		return
	}
	acc.emailsSent++
	c.JSON(http.StatusAccepted, gin.H{"message": "Verification email sent"})
}

func (s *Server) logout(c *gin.Context) {
	token := c.GetString("token")
	s.mu.Lock()
	s.revoked[token] = struct{}{}
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (s *Server) adminUsers(c *gin.Context) {
	acc := accountFrom(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !acc.admin {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
		return
	}
	users := make([]session.Identity, 0, len(s.byID))
	for _, a := range s.byID {
		users = append(users, identityOf(a))
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
