package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

var ErrPrincipalNotFound = errors.New("principal not found")

// PrincipalStore is the lookup-by-username source the gateway depends on.
// Update is the only mutation point; implementations must run fn with the
// principal exclusively held and publish its result atomically.
type PrincipalStore interface {
	FindByUsername(ctx context.Context, username string) (Principal, error)
	List(ctx context.Context) ([]Principal, error)
	Update(ctx context.Context, username string, fn func(Principal) (Principal, error)) (Principal, error)
}

type slot struct {
	mu      sync.Mutex
	current atomic.Pointer[Principal]
}

// Registry is the in-memory PrincipalStore. The set of principals is fixed
// at construction; reads are lock-free.
type Registry struct {
	slots map[string]*slot
	names []string
}

func NewRegistry(principals []Principal) (*Registry, error) {
	r := &Registry{slots: make(map[string]*slot, len(principals))}
	for _, p := range principals {
		if p.Username == "" {
			return nil, errors.New("principal without username")
		}
		if len(p.Roles) == 0 {
			return nil, fmt.Errorf("principal %s has no roles", p.Username)
		}
		if _, dup := r.slots[p.Username]; dup {
			return nil, fmt.Errorf("duplicate principal %s", p.Username)
		}
		s := &slot{}
		v := p.clone()
		s.current.Store(&v)
		r.slots[p.Username] = s
		r.names = append(r.names, p.Username)
	}
	sort.Strings(r.names)
	return r, nil
}

func (r *Registry) FindByUsername(_ context.Context, username string) (Principal, error) {
	s, ok := r.slots[username]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return s.current.Load().clone(), nil
}

func (r *Registry) List(_ context.Context) ([]Principal, error) {
	out := make([]Principal, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.slots[name].current.Load().clone())
	}
	return out, nil
}

// Update serialises writers per principal. Identity fields survive fn
// unchanged; if fn fails nothing is published.
func (r *Registry) Update(ctx context.Context, username string, fn func(Principal) (Principal, error)) (Principal, error) {
	s, ok := r.slots[username]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	cur := s.current.Load()
	next, err := fn(cur.clone())
	if err != nil {
		return Principal{}, err
	}
	next.ID = cur.ID
	next.Username = cur.Username
	if len(next.Roles) == 0 {
		next.Roles = cur.Roles
	}
	v := next.clone()
	s.current.Store(&v)
	return v.clone(), nil
}
