package identity

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config is the env-tagged token configuration.
type Config struct {
	Secret string        `env:"JWT_SECRET,required"`
	Issuer string        `env:"JWT_ISSUER" envDefault:""`
	Leeway time.Duration `env:"JWT_LEEWAY" envDefault:"30s"`
	TTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

// Claims are the token claims the marketplace issues. The user id is read
// from user_id and falls back to the numeric subject.
type Claims struct {
	UserID int64 `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

func (c Claims) userID() (int64, error) {
	if c.UserID > 0 {
		return c.UserID, nil
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidUser
	}
	return id, nil
}

// Resolver verifies HS256 tokens. It implements realtime.IdentityResolver.
type Resolver struct {
	key    []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

// NewResolver creates a resolver for cfg.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSigningKey
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Resolver{
		key:    []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Resolve returns the user id carried by token.
func (r *Resolver) Resolve(_ context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrMissingToken
	}
	var claims Claims
	_, err := r.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return r.key, nil
	})
	if err != nil {
		return 0, errors.Join(ErrInvalidToken, err)
	}
	return claims.userID()
}

// Issue signs a token for userID valid for the configured TTL.
func (r *Resolver) Issue(userID int64) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.key)
}
