package mail

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"mailgate/internal/apperr"
	"mailgate/internal/auth"
)

const maxRequestBody = 1 << 20

// Handler exposes the mail service over HTTP. Methods return errors for the
// router's error responder instead of writing failures themselves.
type Handler struct {
	Service *Service
	Logger  *slog.Logger
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) error {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return apperr.New(apperr.KindTokenHeaderMissing)
	}
	var req SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		return &apperr.Error{
			Kind:       apperr.KindMailRequestInvalid,
			Violations: []string{"body: must be a JSON object with address, subject and content"},
			Err:        err,
		}
	}
	msg, err := h.Service.Send(r.Context(), p, req)
	if err != nil {
		return err
	}
	h.Logger.InfoContext(r.Context(), "message sent", "id", msg.ID, "origin", msg.Origin)
	return writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) error {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return apperr.New(apperr.KindTokenHeaderMissing)
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil {
			limit = l
		}
	}
	msgs, err := h.Service.List(r.Context(), p, limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, msgs)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
