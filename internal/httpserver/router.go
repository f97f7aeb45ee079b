package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailgate/internal/auth"
	"mailgate/internal/mail"
	"mailgate/internal/metrics"
)

const APIPrefix = "/api/v1"

type RouterOptions struct {
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Responder   *Responder
	Authorizer  *auth.Authorizer
	Auth        *auth.Handler
	Mail        *mail.Handler
	CORSOrigins []string
}

func NewRouter(opts RouterOptions) http.Handler {
	rs := opts.Responder
	az := opts.Authorizer

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger, opts.Metrics))
	r.Use(rs.Recover)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(az.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route(APIPrefix, func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(az.RequireAnonymous()).Method(http.MethodPost, "/token", rs.Handle(opts.Auth.Login))
			r.With(az.RequireRoles(auth.RoleAdmin)).Method(http.MethodGet, "/users", rs.Handle(opts.Auth.Users))
			r.With(az.RequireAuthenticated()).Method(http.MethodGet, "/info", rs.Handle(opts.Auth.Info))
		})
		r.Route("/mail", func(r chi.Router) {
			r.Use(az.RequireAuthenticated())
			r.Method(http.MethodPost, "/send", rs.Handle(opts.Mail.Send))
			r.Method(http.MethodGet, "/messages", rs.Handle(opts.Mail.Messages))
		})
	})
	return r
}
