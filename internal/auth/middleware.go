package auth

import (
	"net/http"
	"strings"

	"mailgate/internal/apperr"
)

const bearerPrefix = "Bearer "

// ErrorWriter renders a failure. The authorizer never writes responses
// itself.
type ErrorWriter interface {
	WriteError(w http.ResponseWriter, r *http.Request, err error)
}

type ErrorWriterFunc func(w http.ResponseWriter, r *http.Request, err error)

func (f ErrorWriterFunc) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	f(w, r, err)
}

type Authorizer struct {
	authn  Authenticator
	public []string
	errs   ErrorWriter
}

func NewAuthorizer(authn Authenticator, publicPaths []string, errs ErrorWriter) *Authorizer {
	public := make([]string, 0, len(publicPaths))
	for _, p := range publicPaths {
		if p = strings.TrimSpace(p); p != "" {
			public = append(public, p)
		}
	}
	return &Authorizer{authn: authn, public: public, errs: errs}
}

// IsPublic reports whether path contains one of the public fragments.
func (a *Authorizer) IsPublic(path string) bool {
	for _, p := range a.public {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// Middleware authenticates every request and stores the result in the
// request context.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cred Credentials
		switch {
		case r.Method == http.MethodOptions || a.IsPublic(r.URL.Path):
			cred = Anonymous{}
		default:
			if prev, ok := FromContext(r.Context()); ok && !prev.Anonymous {
				cred = Resolved{Principal: prev.Principal}
				break
			}
			token := BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				a.errs.WriteError(w, r, apperr.New(apperr.KindTokenHeaderMissing))
				return
			}
			cred = Bearer{Token: token}
		}

		authn, err := a.authn.Authenticate(r.Context(), cred)
		if err != nil {
			a.errs.WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAuthentication(r.Context(), authn)))
	})
}

// RequireRoles admits authenticated callers holding at least one of roles.
func (a *Authorizer) RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				a.errs.WriteError(w, r, apperr.New(apperr.KindTokenHeaderMissing))
				return
			}
			if !p.HasAnyRole(roles...) {
				a.errs.WriteError(w, r, apperr.New(apperr.KindAccessDenied))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authorizer) RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); !ok {
				a.errs.WriteError(w, r, apperr.New(apperr.KindTokenHeaderMissing))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnonymous keeps already-authenticated callers off routes such as
// login.
func (a *Authorizer) RequireAnonymous() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); ok {
				a.errs.WriteError(w, r, apperr.New(apperr.KindAccessDenied))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken strips the "Bearer " prefix. A header without the prefix is
// returned as-is so that it fails token decoding rather than looking absent.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == strings.TrimSpace(bearerPrefix) {
		return ""
	}
	if rest, ok := strings.CutPrefix(header, bearerPrefix); ok {
		return strings.TrimSpace(rest)
	}
	return header
}
