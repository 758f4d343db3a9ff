package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/models"
)

// State of a Session
type State int

const (
	SignedOut State = iota
	SignedIn
	ProfileLoaded
)

func (s State) String() string {
	switch s {
	case SignedIn:
		return "signed_in"
	case ProfileLoaded:
		return "profile_loaded"
	default:
		return "signed_out"
	}
}

// ProfileLoader fetches the profile document of a verified user
type ProfileLoader func(ctx context.Context, uid string) (*models.User, error)

// StoreProfileLoader reads users/{uid}
func StoreProfileLoader(store docstore.Store) ProfileLoader {
	return func(ctx context.Context, uid string) (*models.User, error) {
		snap, err := store.Get(ctx, docstore.Doc(models.CollUsers, uid))
		if err != nil {
			return nil, err
		}
		var u models.User
		if err := snap.DataTo(&u); err != nil {
			return nil, err
		}
		u.UID = uid
		return &u, nil
	}
}

// Session moves SignedOut -> SignedIn -> ProfileLoaded. A verified user
// without a profile document stays SignedIn until the profile is created.
// Listeners are called on every transition, outside the session lock.
type Session struct {
	verifier Verifier
	load     ProfileLoader

	mu        sync.Mutex
	state     State
	identity  *Identity
	profile   *models.User
	listeners map[int]func(State)
	nextID    int
}

func NewSession(verifier Verifier, load ProfileLoader) *Session {
	return &Session{verifier: verifier, load: load, listeners: make(map[int]func(State))}
}

// SignIn verifies the token and loads the profile
func (s *Session) SignIn(ctx context.Context, token string) error {
	id, err := s.verifier.Verify(ctx, token)
	if err != nil {
		s.SignOut()
		return err
	}
	s.transition(SignedIn, id, nil)
	return s.ReloadProfile(ctx)
}

// ReloadProfile refetches the profile of the signed in user
func (s *Session) ReloadProfile(ctx context.Context) error {
	s.mu.Lock()
	id := s.identity
	s.mu.Unlock()
	if id == nil {
		return ErrMissingToken
	}
	u, err := s.load(ctx, id.UID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.transition(ProfileLoaded, id, u)
	return nil
}

// SignOut forgets the identity and profile
func (s *Session) SignOut() {
	s.transition(SignedOut, nil, nil)
}

func (s *Session) transition(state State, id *Identity, profile *models.User) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.identity = id
	s.profile = profile
	listeners := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range listeners {
		fn(state)
	}
}

// Subscribe calls fn with the current state and on every transition. The
// returned func removes the listener.
func (s *Session) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	state := s.state
	s.mu.Unlock()

	fn(state)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UID returns the signed in user id, or "" when signed out
func (s *Session) UID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return ""
	}
	return s.identity.UID
}

// Profile returns the loaded profile, or nil before ProfileLoaded
func (s *Session) Profile() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}
