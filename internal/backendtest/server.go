package backendtest

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goPortal/jwt"
	"github.com/MrEthical07/goPortal/middleware"
	"github.com/MrEthical07/goPortal/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DefaultCode is the TOTP code accepted when Config.Code is empty.
const DefaultCode = "123456"

const maxChallengeAttempts = 5

// Config configures a [Server].
type Config struct {
	Code         string
	TokenTTL     time.Duration
	ChallengeTTL time.Duration
	Secret       []byte

	// MaxLoginFailures failed logins for one email within LoginCooldown make
	// further logins answer 429. Zero disables the limit.
	MaxLoginFailures int
	LoginCooldown    time.Duration

	// EmptyProfileAck answers a successful profile PATCH with 204 and no body.
	EmptyProfileAck bool
}

// Account seeds a user.
type Account struct {
	Identity  session.Identity
	Password  string
	TwoFactor bool
	Admin     bool
}

type account struct {
	identity     session.Identity
	passwordHash string
	twoFactor    bool
	admin        bool
	pendingSetup string
	totpSecret   string
	emailsSent   int
}

type challenge struct {
	email     string
	expiresAt time.Time
	attempts  int
}

// Server is the fake backend. It is safe for concurrent use.
type Server struct {
	cfg     Config
	tokens  *jwt.Manager
	engine  *gin.Engine
	limiter *loginLimiter
	now     func() time.Time

	mu         sync.Mutex
	accounts   map[string]*account
	byID       map[string]*account
	challenges map[string]*challenge
	revoked    map[string]struct{}
	calls      map[string]int
	hooks      map[string]func()
}

// New returns an empty backend.
func New(cfg Config) (*Server, error) {
	if cfg.Code == "" {
		cfg.Code = DefaultCode
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	if cfg.LoginCooldown <= 0 {
		cfg.LoginCooldown = 15 * time.Minute
	}
	if len(cfg.Secret) == 0 {
		cfg.Secret = []byte(uuid.NewString())
	}
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.TokenTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    cfg.Secret,
		Issuer:        "portal-backendtest",
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		tokens:     tokens,
		now:        time.Now,
		accounts:   map[string]*account{},
		byID:       map[string]*account{},
		challenges: map[string]*challenge{},
		revoked:    map[string]struct{}{},
		calls:      map[string]int{},
		hooks:      map[string]func(){},
	}
	s.limiter = newLoginLimiter(cfg.MaxLoginFailures, cfg.LoginCooldown, func() time.Time { return s.now() })
	s.engine = s.routes()
	return s, nil
}

// Handler returns the HTTP handler serving the backend routes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// AddAccount registers a user. Missing IDs and creation times are filled in.
// The password is stored as an argon2id hash.
func (s *Server) AddAccount(a Account) session.Identity {
	hash, err := hashPassword(a.Password, defaultHashParams)
	if err != nil {
		panic("backendtest: hash password: " + err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := a.Identity
	if id.ID == "" {
		id.ID = uuid.NewString()
	}
	if id.CreatedAt.IsZero() {
		id.CreatedAt = s.now().UTC().Truncate(time.Second)
	}
	acc := &account{identity: id, passwordHash: hash, twoFactor: a.TwoFactor, admin: a.Admin}
	s.accounts[strings.ToLower(id.Email)] = acc
	s.byID[id.ID] = acc
	return id
}

// TwoFactorEnabled reports the server-side 2FA flag for email.
func (s *Server) TwoFactorEnabled(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(email)]
	return ok && acc.twoFactor
}

// VerificationEmailsSent returns how many verification emails email was sent.
func (s *Server) VerificationEmailsSent(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[strings.ToLower(email)]; ok {
		return acc.emailsSent
	}
	return 0
}

// Revoke makes token fail every authenticated route with 401.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = struct{}{}
}

// ExpireChallenges drops every outstanding second-factor challenge.
func (s *Server) ExpireChallenges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges = map[string]*challenge{}
}

// codeValid accepts the fixed Config.Code or a current TOTP for secret.
// Callers hold s.mu.
func (s *Server) codeValid(code, secret string) bool {
	return code == s.cfg.Code || verifyTOTP(secret, code, s.now())
}

// Calls returns the number of requests served for route, e.g. "POST /auth/login".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// OnRoute runs fn before route is handled. Tests use it to block a response.
func (s *Server) OnRoute(route string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[route] = fn
}

var errUnauthorized = errors.New("unauthorized")

func (s *Server) authenticate(c *gin.Context) (*account, string, error) {
	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		return nil, "", errUnauthorized
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, "", errUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, revoked := s.revoked[token]; revoked {
		return nil, "", errUnauthorized
	}
	acc, ok := s.byID[claims.Subject]
	if !ok {
		return nil, "", errUnauthorized
	}
	return acc, token, nil
}

func (s *Server) issue(acc *account) (string, error) {
	var roles []string
	if acc.admin {
		roles = []string{session.CapabilityAdmin}
	}
	return s.tokens.Issue(acc.identity.ID, acc.identity.Email, roles)
}

func identityOf(acc *account) session.Identity {
	id := acc.identity
	if acc.admin {
		id.Capabilities = []string{session.CapabilityAdmin}
	}
	return id
}
