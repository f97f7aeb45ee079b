package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"mailgate/internal/apperr"
)

// Credentials is what a request presents to the gateway. The concrete type
// selects the flow.
type Credentials interface {
	flow() string
}

// Anonymous marks a request that was admitted without credentials.
type Anonymous struct{}

// Resolved carries a principal that an earlier stage already authenticated.
type Resolved struct {
	Principal Principal
}

// Password is a login attempt.
type Password struct {
	Username string
	Password string
}

// Bearer is a previously issued token.
type Bearer struct {
	Token string
}

func (Anonymous) flow() string { return "anonymous" }
func (Resolved) flow() string  { return "resolved" }
func (Password) flow() string  { return "password" }
func (Bearer) flow() string    { return "bearer" }

// Authenticator is implemented by Gateway; the HTTP layer depends on this.
type Authenticator interface {
	Authenticate(ctx context.Context, cred Credentials) (*Authentication, error)
}

// Observer receives one call per authentication attempt.
type Observer interface {
	ObserveAuthentication(flow, result string)
}

type Gateway struct {
	principals PrincipalStore
	codec      *Codec
	sessions   SessionStore
	observer   Observer
}

type GatewayOption func(*Gateway)

func WithObserver(o Observer) GatewayOption {
	return func(g *Gateway) { g.observer = o }
}

func NewGateway(principals PrincipalStore, codec *Codec, sessions SessionStore, opts ...GatewayOption) *Gateway {
	g := &Gateway{principals: principals, codec: codec, sessions: sessions}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate runs exactly one flow to a terminal result. Failures are
// always *apperr.Error.
func (g *Gateway) Authenticate(ctx context.Context, cred Credentials) (*Authentication, error) {
	var (
		authn *Authentication
		err   error
		flow  = "none"
	)
	switch c := cred.(type) {
	case Anonymous:
		flow = c.flow()
		authn = &Authentication{Principal: anonymousPrincipal(), Anonymous: true}
	case Resolved:
		flow = c.flow()
		authn = &Authentication{Principal: c.Principal.clone()}
	case Password:
		flow = c.flow()
		authn, err = g.exchangeCredentials(ctx, c)
	case Bearer:
		flow = c.flow()
		authn, err = g.exchangeToken(ctx, c)
	default:
		err = apperr.New(apperr.KindTokenHeaderMissing)
	}
	if g.observer != nil {
		result := "success"
		if err != nil {
			result = apperr.KindOf(err).String()
		}
		g.observer.ObserveAuthentication(flow, result)
	}
	if err != nil {
		return nil, err
	}
	return authn, nil
}

func (g *Gateway) exchangeCredentials(ctx context.Context, c Password) (*Authentication, error) {
	p, err := g.principals.FindByUsername(ctx, c.Username)
	if errors.Is(err, ErrPrincipalNotFound) {
		return nil, apperr.New(apperr.KindInvalidUsername)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(c.Password))
	switch {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return nil, apperr.New(apperr.KindInvalidPassword)
	case err != nil:
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("compare password for %s: %w", p.Username, err))
	}

	var token string
	updated, err := g.principals.Update(ctx, p.Username, func(cur Principal) (Principal, error) {
		signed, exp, err := g.codec.Issue(cur)
		if err != nil {
			return cur, err
		}
		if err := g.sessions.Bind(ctx, cur.Username, signed, exp); err != nil {
			return cur, fmt.Errorf("bind session: %w", err)
		}
		cur.Token = signed
		cur.AuthenticatedAt = g.codec.now().UTC()
		token = signed
		return cur, nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err)
	}
	return &Authentication{Principal: updated, Token: token}, nil
}

func (g *Gateway) exchangeToken(ctx context.Context, c Bearer) (*Authentication, error) {
	claims, err := g.codec.Verify(c.Token)
	if err != nil {
		return nil, err
	}

	username, err := g.sessions.Lookup(ctx, c.Token)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, apperr.Newf(apperr.KindTokenExpired, "no live session for token")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err)
	}
	if username != claims.Subject {
		return nil, apperr.Newf(apperr.KindTokenInvalid, "session subject mismatch")
	}

	p, err := g.principals.FindByUsername(ctx, username)
	if errors.Is(err, ErrPrincipalNotFound) {
		return nil, apperr.Newf(apperr.KindTokenExpired, "principal no longer present")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err)
	}
	return &Authentication{Principal: p, Token: c.Token}, nil
}
