// Package token verifies and decodes the signed session tokens issued by the
// remote API. It never issues tokens.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/NelsonFranklinWere/emil/backend/internal/access"
	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid token")

type Config struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

type Codec struct {
	secret []byte
	parser *jwt.Parser
}

// Claims is a verified claims set.
type Claims struct {
	Subject   string
	Email     string
	Role      domain.Role
	ExpiresAt time.Time
}

func (c *Claims) Principal() *access.Principal {
	return &access.Principal{Subject: c.Subject, Email: c.Email, Role: c.Role}
}

type wireClaims struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func NewCodec(cfg Config) (*Codec, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}

	return &Codec{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(options...),
	}, nil
}

// Decode verifies the signature and expiry of raw and returns its claims.
func (c *Codec) Decode(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	wc := &wireClaims{}
	parsed, err := c.parser.ParseWithClaims(raw, wc, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	subject := wc.Subject
	if subject == "" {
		subject = wc.UserID
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}

	role, err := domain.ParseRole(wc.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	return &Claims{
		Subject:   subject,
		Email:     wc.Email,
		Role:      role,
		ExpiresAt: wc.ExpiresAt.Time,
	}, nil
}
