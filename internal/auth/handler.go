package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"

	"mailgate/internal/apperr"
)

type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r TokenRequest) Validate() []string {
	var v []string
	switch {
	case strings.TrimSpace(r.Username) == "":
		v = append(v, "username: must not be blank")
	case !govalidator.IsEmail(r.Username):
		v = append(v, "username: must be a valid email address")
	}
	switch {
	case strings.TrimSpace(r.Password) == "":
		v = append(v, "password: must not be blank")
	case !govalidator.StringLength(r.Password, "4", "20"):
		v = append(v, "password: size must be between 4 and 20")
	}
	return v
}

type TokenResponse struct {
	Token string `json:"token"`
}

type UserResponse struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Authorities []Role     `json:"authorities"`
	Timestamp   *time.Time `json:"timestamp"`
}

func NewUserResponse(p Principal) UserResponse {
	resp := UserResponse{ID: p.ID, Email: p.Username, Authorities: p.Roles}
	if !p.AuthenticatedAt.IsZero() {
		ts := p.AuthenticatedAt
		resp.Timestamp = &ts
	}
	return resp
}

// Handler serves the token and account endpoints.
type Handler struct {
	Gateway    Authenticator
	Principals PrincipalStore
	Logger     *slog.Logger
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) error {
	var req TokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		return &apperr.Error{
			Kind:       apperr.KindCredentialsRequestInvalid,
			Violations: []string{"body: must be a JSON object with username and password"},
			Err:        err,
		}
	}
	if v := req.Validate(); len(v) > 0 {
		return apperr.Invalid(apperr.KindCredentialsRequestInvalid, v)
	}

	authn, err := h.Gateway.Authenticate(r.Context(), Password{Username: req.Username, Password: req.Password})
	if err != nil {
		return err
	}
	h.Logger.InfoContext(r.Context(), "token issued", "username", authn.Principal.Username)
	return writeJSON(w, http.StatusOK, TokenResponse{Token: authn.Token})
}

func (h *Handler) Users(w http.ResponseWriter, r *http.Request) error {
	principals, err := h.Principals.List(r.Context())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err)
	}
	out := make([]UserResponse, 0, len(principals))
	for _, p := range principals {
		out = append(out, NewUserResponse(p))
	}
	return writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) error {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		return apperr.New(apperr.KindTokenHeaderMissing)
	}
	// Reload so the response reflects the latest login timestamp.
	current, err := h.Principals.FindByUsername(r.Context(), p.Username)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err)
	}
	return writeJSON(w, http.StatusOK, NewUserResponse(current))
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
