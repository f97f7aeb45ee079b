package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"mailgate/internal/auth"
	"mailgate/internal/mail"
	"mailgate/internal/metrics"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []mail.Envelope
}

func (s *recordingSender) Send(_ context.Context, env mail.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	return nil
}

type APISuite struct {
	suite.Suite
	handler http.Handler
	sender  *recordingSender
	logs    *bytes.Buffer
	clock   time.Time
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	t := s.T()
	s.clock = time.Now().UTC().Truncate(time.Second)
	now := func() time.Time { return s.clock }

	principals, err := auth.BuildPrincipals(auth.DefaultSeed(), bcrypt.MinCost)
	require.NoError(t, err)
	registry, err := auth.NewRegistry(principals)
	require.NoError(t, err)
	codec, err := auth.NewCodec("api-test-secret", time.Hour, auth.WithClock(now))
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	s.logs = &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(s.logs, nil))

	gateway := auth.NewGateway(registry, codec, auth.NewMemorySessionStore(auth.SessionSingle, now), auth.WithObserver(m))
	responder := NewResponder(logger, m)
	authorizer := auth.NewAuthorizer(gateway, []string{"/api/v1/auth/token", "/healthz", "/metrics"}, responder)

	s.sender = &recordingSender{}
	mailSvc := mail.NewService(mail.NewMemoryStore(), s.sender, mail.DefaultPolicy(), logger, mail.WithObserver(m), mail.WithClock(now))

	s.handler = NewRouter(RouterOptions{
		Logger:      logger,
		Metrics:     m,
		Gatherer:    promReg,
		Responder:   responder,
		Authorizer:  authorizer,
		Auth:        &auth.Handler{Gateway: gateway, Principals: registry, Logger: logger},
		Mail:        &mail.Handler{Service: mailSvc, Logger: logger},
		CORSOrigins: []string{"http://localhost:3000"},
	})
}

func (s *APISuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *APISuite) login(username, password string) string {
	rec := s.do(http.MethodPost, "/api/v1/auth/token", "", auth.TokenRequest{Username: username, Password: password})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp auth.TokenResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().NotEmpty(resp.Token)
	return resp.Token
}

func (s *APISuite) errorOf(rec *httptest.ResponseRecorder) ErrorResponse {
	return decodeError(s.T(), rec)
}

func (s *APISuite) TestMessagesWithoutHeader() {
	rec := s.do(http.MethodGet, "/api/v1/mail/messages", "", nil)

	s.Equal(http.StatusUnauthorized, rec.Code)
	body := s.errorOf(rec)
	s.Equal("token-header-missing", body.Error)
	s.Equal(420, body.Code)
	s.Equal("/api/v1/mail/messages", body.URL)
	s.Equal(http.MethodGet, body.Method)
	s.Nil(body.Errors)
}

func (s *APISuite) TestLoginFailures() {
	rec := s.do(http.MethodPost, "/api/v1/auth/token", "", auth.TokenRequest{Username: "user1@api.com", Password: "wrong"})
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("invalid-password", s.errorOf(rec).Error)

	rec = s.do(http.MethodPost, "/api/v1/auth/token", "", auth.TokenRequest{Username: "ghost@api.com", Password: "user"})
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("invalid-username", s.errorOf(rec).Error)
}

func (s *APISuite) TestLoginPayloadValidation() {
	rec := s.do(http.MethodPost, "/api/v1/auth/token", "", auth.TokenRequest{Username: "not-an-email", Password: "x"})
	s.Equal(http.StatusBadRequest, rec.Code)
	body := s.errorOf(rec)
	s.Equal("credentials-request-invalid", body.Error)
	s.Equal(412, body.Code)
	s.Len(body.Errors, 2)

	rec = s.do(http.MethodPost, "/api/v1/auth/token", "", "{not json")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("credentials-request-invalid", s.errorOf(rec).Error)
}

func (s *APISuite) TestSendRejectsInvalidDestination() {
	token := s.login("user1@api.com", "user")

	for _, addr := range []string{"not-an-email", "use-api.com"} {
		rec := s.do(http.MethodPost, "/api/v1/mail/send", token, mail.SendRequest{Address: addr, Subject: "s", Content: "c"})
		s.Equal(http.StatusBadRequest, rec.Code, addr)
		body := s.errorOf(rec)
		s.Equal("mail-request-invalid", body.Error)
		s.NotEmpty(body.Errors)
	}
	s.Empty(s.sender.sent)
}

func (s *APISuite) TestSendRejectsBlockedHost() {
	token := s.login("user1@api.com", "user")

	rec := s.do(http.MethodPost, "/api/v1/mail/send", token, mail.SendRequest{Address: "ceo@apple.com", Subject: "s", Content: "c"})
	s.Equal(http.StatusBadRequest, rec.Code)
	body := s.errorOf(rec)
	s.Equal("mail-destination-invalid", body.Error)
	s.Equal(511, body.Code)
	s.Nil(body.Errors)
}

func (s *APISuite) TestSendAndList() {
	user1 := s.login("user1@api.com", "user")

	rec := s.do(http.MethodPost, "/api/v1/mail/send", user1, mail.SendRequest{Address: "user2@api.com", Subject: "hello", Content: "hi there"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var sent mail.Message
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &sent))
	s.Equal("user1@api.com", sent.Origin)
	s.Equal("user2@api.com", sent.Address)
	s.NotEmpty(sent.ID)

	rec = s.do(http.MethodPost, "/api/v1/mail/send", user1, mail.SendRequest{Address: "admin@api.com", Subject: "report", Content: "numbers"})
	s.Require().Equal(http.StatusCreated, rec.Code)
	s.Len(s.sender.sent, 2)

	listFor := func(token string) []mail.Message {
		rec := s.do(http.MethodGet, "/api/v1/mail/messages", token, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var msgs []mail.Message
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &msgs))
		return msgs
	}
	s.Len(listFor(user1), 2)
	s.Len(listFor(s.login("user2@api.com", "user")), 1)
	s.Empty(listFor(s.login("user3@api.com", "user")))
	s.Len(listFor(s.login("admin@api.com", "admin")), 2)
}

func (s *APISuite) TestUsersIsAdminOnly() {
	rec := s.do(http.MethodGet, "/api/v1/auth/users", s.login("user1@api.com", "user"), nil)
	s.Equal(http.StatusForbidden, rec.Code)
	body := s.errorOf(rec)
	s.Equal("access-denied", body.Error)
	s.Equal(421, body.Code)

	rec = s.do(http.MethodGet, "/api/v1/auth/users", s.login("admin@api.com", "admin"), nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var users []auth.UserResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &users))
	s.Len(users, 4)
	s.NotContains(rec.Body.String(), "$2a$", "password hashes never leave the process")
}

func (s *APISuite) TestInfo() {
	rec := s.do(http.MethodGet, "/api/v1/auth/info", s.login("user1@api.com", "user"), nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var info auth.UserResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &info))
	s.Equal("user1@api.com", info.Email)
	s.Equal([]auth.Role{auth.RoleUser}, info.Authorities)
	s.Require().NotNil(info.Timestamp)
	s.True(info.Timestamp.Equal(s.clock))
}

func (s *APISuite) TestTamperedTokenIsRejectedAndLogged() {
	token := s.login("user1@api.com", "user")
	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	forged := parts[0] + "." + parts[1] + "." + string(sig)

	rec := s.do(http.MethodGet, "/api/v1/auth/info", forged, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("token-signature-invalid", s.errorOf(rec).Error)
	s.Contains(s.logs.String(), "possible forgery")
}

func (s *APISuite) TestNewLoginRetiresPreviousToken() {
	first := s.login("user1@api.com", "user")
	s.clock = s.clock.Add(time.Second)
	second := s.login("user1@api.com", "user")

	rec := s.do(http.MethodGet, "/api/v1/auth/info", first, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("token-expired", s.errorOf(rec).Error)

	rec = s.do(http.MethodGet, "/api/v1/auth/info", second, nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *APISuite) TestExpiredToken() {
	token := s.login("user2@api.com", "user")
	s.clock = s.clock.Add(2 * time.Hour)

	rec := s.do(http.MethodGet, "/api/v1/mail/messages", token, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("token-expired", s.errorOf(rec).Error)
}

func (s *APISuite) TestPublicEndpoints() {
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok"}`, rec.Body.String())

	s.login("user1@api.com", "user")
	rec = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `mailgate_authentications_total{flow="password",result="success"} 1`)
}

func (s *APISuite) TestCORSPreflightBypassesAuthentication() {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/mail/send", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Less(rec.Code, 300)
	s.Equal("http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func (s *APISuite) TestUnknownPathStillRequiresToken() {
	rec := s.do(http.MethodGet, "/api/v1/unknown", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("token-header-missing", s.errorOf(rec).Error)
}
