package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default validity windows.
const (
	DefaultOperatorTTL = time.Hour
	DefaultCommandTTL  = 5 * time.Minute
)

// ErrMissingSecret is returned by NewAuthority when no signing secret is configured.
var ErrMissingSecret = errors.New("token: signing secret is required")

// Config defines the signing secret and validity windows.
type Config struct {
	Secret      string        `json:"secret"`
	OperatorTTL time.Duration `json:"-"`
	CommandTTL  time.Duration `json:"-"`
}

// Signer issues command claims. The device handler only needs this half.
type Signer interface {
	IssueCommandClaim(fields map[string]any) (string, error)
}

// Verifier verifies tokens of either namespace.
type Verifier interface {
	Verify(token string) (Claims, bool)
}

// Authority signs and verifies HS256 tokens. It holds no mutable state after
// construction and is safe for concurrent use.
type Authority struct {
	secret      []byte
	operatorTTL time.Duration
	commandTTL  time.Duration
	now         func() time.Time
}

// Option customizes an Authority.
type Option func(*Authority)

// WithClock replaces time.Now for both issuing and verification.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// NewAuthority validates cfg and returns an Authority. Zero TTLs fall back to
// the defaults.
func NewAuthority(cfg Config, opts ...Option) (*Authority, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	a := &Authority{
		secret:      []byte(cfg.Secret),
		operatorTTL: cfg.OperatorTTL,
		commandTTL:  cfg.CommandTTL,
		now:         time.Now,
	}
	if a.operatorTTL <= 0 {
		a.operatorTTL = DefaultOperatorTTL
	}
	if a.commandTTL <= 0 {
		a.commandTTL = DefaultCommandTTL
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// CommandTTL returns the validity window applied to command claims.
func (a *Authority) CommandTTL() time.Duration { return a.commandTTL }

// IssueOperatorClaim signs an operator session token.
func (a *Authority) IssueOperatorClaim() (string, error) {
	return a.sign(jwt.MapClaims{
		FieldScope: ScopeOperator,
		FieldRole:  RoleOperator,
	}, a.operatorTTL)
}

// IssueCommandClaim signs fields in the command namespace. A scope or role
// supplied by the caller is overwritten so the namespaces cannot be mixed.
func (a *Authority) IssueCommandClaim(fields map[string]any) (string, error) {
	mc := make(jwt.MapClaims, len(fields)+3)
	for k, v := range fields {
		mc[k] = v
	}
	delete(mc, FieldRole)
	mc[FieldScope] = ScopeCommand
	return a.sign(mc, a.commandTTL)
}

func (a *Authority) sign(mc jwt.MapClaims, ttl time.Duration) (string, error) {
	now := a.now()
	mc["iat"] = now.Unix()
	mc["exp"] = now.Add(ttl).Unix()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the claims of a token whose signature matches and whose
// expiry has not elapsed. Any failure yields (nil, false).
func (a *Authority) Verify(raw string) (Claims, bool) {
	if raw == "" {
		return nil, false
	}
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil || !parsed.Valid {
		return nil, false
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	out := make(Claims, len(mc))
	for k, v := range mc {
		if k == "exp" || k == "iat" {
			continue
		}
		out[k] = v
	}
	return out, true
}
