package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mailgate/internal/apperr"
)

const (
	DefaultIssuer   = "mailgate"
	DefaultAudience = "mailgate-api"
)

type Claims struct {
	PrincipalID string `json:"id"`
	Username    string `json:"username"`
	Roles       []Role `json:"authorities"`
	jwt.RegisteredClaims
}

var errUnsupportedAlgorithm = errors.New("unsupported signing algorithm")

// Codec issues and verifies HS512 tokens with a single shared secret.
type Codec struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
	parser   *jwt.Parser
}

type CodecOption func(*Codec)

func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) { c.issuer = issuer }
}

func WithAudience(audience string) CodecOption {
	return func(c *Codec) { c.audience = audience }
}

func NewCodec(secret string, ttl time.Duration, opts ...CodecOption) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token secret is empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive, got %s", ttl)
	}
	c := &Codec{
		secret:   []byte(secret),
		ttl:      ttl,
		issuer:   DefaultIssuer,
		audience: DefaultAudience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithTimeFunc(c.now),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
	)
	return c, nil
}

func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a token projecting p at the codec's current time.
func (c *Codec) Issue(p Principal) (string, time.Time, error) {
	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(c.ttl)
	claims := Claims{
		PrincipalID: p.ID.String(),
		Username:    p.Username,
		Roles:       p.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        p.ID.String(),
			Subject:   p.Username,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, algorithm, issuer, audience and lifetime. Every
// failure is an *apperr.Error with one of the token kinds.
func (c *Codec) Verify(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, apperr.Newf(apperr.KindTokenInvalid, "empty token")
	}
	claims := &Claims{}
	if _, err := c.parser.ParseWithClaims(raw, claims, c.key); err != nil {
		return nil, c.classify(raw, err)
	}
	return claims, nil
}

func (c *Codec) key(t *jwt.Token) (any, error) {
	if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
		return nil, errUnsupportedAlgorithm
	}
	return c.secret, nil
}

func (c *Codec) classify(raw string, err error) *apperr.Error {
	switch {
	case errors.Is(err, errUnsupportedAlgorithm), errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperr.Wrap(apperr.KindTokenUnsupported, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		// Header and claims decode; only the signature segment is broken.
		if _, _, perr := c.parser.ParseUnverified(raw, &Claims{}); perr == nil {
			return apperr.Wrap(apperr.KindTokenSignatureInvalid, err)
		}
		return apperr.Wrap(apperr.KindTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperr.Wrap(apperr.KindTokenSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperr.Wrap(apperr.KindTokenExpired, err)
	default:
		return apperr.Wrap(apperr.KindTokenInvalid, err)
	}
}
