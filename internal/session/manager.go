// Package session maps user identities to live calendar handles, running
// the authorization sequence lazily on first use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/user/calbot/internal/types"
)

// AuthorizeFunc performs the interactive authorization grant and returns a
// fresh token.
type AuthorizeFunc func(ctx context.Context) (*oauth2.Token, error)

// CalendarFactory builds a calendar handle from a token source.
type CalendarFactory func(ctx context.Context, src oauth2.TokenSource) (types.Calendar, error)

// Manager owns one session per user: the credential and the calendar handle
// derived from it.
type Manager struct {
	oauth       *oauth2.Config
	tokens      types.TokenStore
	authorize   AuthorizeFunc
	newCalendar CalendarFactory

	// mu guards the map only; each session carries its own lock so one
	// user's authorization sequence never blocks another user's Resolve.
	mu     sync.Mutex
	active map[types.UserID]*userSession
}

type userSession struct {
	mu  sync.Mutex
	cal types.Calendar
}

// New creates a Manager. The authorize func is invoked synchronously when a
// user has no usable stored token.
func New(cfg *oauth2.Config, tokens types.TokenStore, authorize AuthorizeFunc, factory CalendarFactory) *Manager {
	return &Manager{
		oauth:       cfg,
		tokens:      tokens,
		authorize:   authorize,
		newCalendar: factory,
		active:      make(map[types.UserID]*userSession),
	}
}

func (m *Manager) session(user types.UserID) *userSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.active[user]
	if !ok {
		s = &userSession{}
		m.active[user] = s
	}
	return s
}

// Resolve returns the user's calendar handle, establishing it if needed:
// stored token -> refresh in place via the token source -> full interactive
// authorization. Authorization failure propagates to the caller; nothing is
// cached on error so the next call re-attempts.
func (m *Manager) Resolve(ctx context.Context, user types.UserID) (types.Calendar, error) {
	s := m.session(user)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cal != nil {
		return s.cal, nil
	}

	tok, err := m.tokens.Load(ctx, user)
	if err != nil && !errors.Is(err, types.ErrNoToken) {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if tok == nil || (!tok.Valid() && tok.RefreshToken == "") {
		tok, err = m.authorize(ctx)
		if err != nil {
			return nil, fmt.Errorf("authorize: %w", err)
		}
		if err := m.tokens.Save(ctx, user, tok); err != nil {
			return nil, fmt.Errorf("save token: %w", err)
		}
		slog.Info("user authorized", "user_id", string(user))
	}

	cal, err := m.newCalendar(ctx, m.tokenSource(ctx, user, tok))
	if err != nil {
		return nil, fmt.Errorf("create calendar handle: %w", err)
	}
	s.cal = cal
	return cal, nil
}

// Invalidate drops the cached handle so the next Resolve re-derives it.
func (m *Manager) Invalidate(user types.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, user)
}

// tokenSource wraps the standard refreshing source so refreshed tokens are
// persisted in place.
func (m *Manager) tokenSource(ctx context.Context, user types.UserID, tok *oauth2.Token) oauth2.TokenSource {
	return &savingSource{
		user:   user,
		tokens: m.tokens,
		src:    oauth2.ReuseTokenSource(tok, m.oauth.TokenSource(ctx, tok)),
		last:   tok.AccessToken,
	}
}

type savingSource struct {
	user   types.UserID
	tokens types.TokenStore
	src    oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.tokens.Save(context.Background(), s.user, tok); err != nil {
			slog.Warn("persist refreshed token failed", "user_id", string(s.user), "error", err)
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
