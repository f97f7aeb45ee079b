package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mailgate/internal/apperr"
	"mailgate/internal/auth"
)

// DispatchObserver is told the result of every outbound send.
type DispatchObserver interface {
	ObserveMailDispatch(result string)
}

type Service struct {
	store    Store
	sender   Sender
	policy   Policy
	logger   *slog.Logger
	observer DispatchObserver
	now      func() time.Time
}

type Option func(*Service)

func WithObserver(o DispatchObserver) Option {
	return func(s *Service) { s.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, sender Sender, policy Policy, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		sender: sender,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send validates req, applies the destination policy, dispatches and then
// records the message. A dispatched message is not recalled if recording
// fails.
func (s *Service) Send(ctx context.Context, from auth.Principal, req SendRequest) (*Message, error) {
	if v := req.Validate(from.Username); len(v) > 0 {
		return nil, apperr.Invalid(apperr.KindMailRequestInvalid, v)
	}
	if err := s.policy.Check(req.Address); err != nil {
		return nil, err
	}

	msg := &Message{
		ID:        uuid.New(),
		Address:   req.Address,
		Subject:   req.Subject,
		Content:   req.Content,
		Origin:    from.Username,
		Timestamp: s.now().UTC(),
	}
	err := s.sender.Send(ctx, Envelope{From: msg.Origin, To: msg.Address, Subject: msg.Subject, Body: msg.Content})
	s.observe(err)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("dispatch message %s: %w", msg.ID, err))
	}

	if err := s.store.Insert(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "record dispatched message", "id", msg.ID, "err", err)
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("record message %s: %w", msg.ID, err))
	}
	return msg, nil
}

// List returns every message to admins and, to everyone else, the messages
// they sent or received.
func (s *Service) List(ctx context.Context, viewer auth.Principal, limit int) ([]Message, error) {
	f := Filter{Limit: limit}
	if !viewer.HasAnyRole(auth.RoleAdmin) {
		if viewer.Username == "" {
			return []Message{}, nil
		}
		f.Participant = viewer.Username
	}
	msgs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("list messages: %w", err))
	}
	return msgs, nil
}

func (s *Service) observe(err error) {
	if s.observer == nil {
		return
	}
	if err != nil {
		s.observer.ObserveMailDispatch("failed")
		return
	}
	s.observer.ObserveMailDispatch("sent")
}
