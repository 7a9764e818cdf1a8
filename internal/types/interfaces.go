// internal/types/interfaces.go
package types

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned by TokenStore.Load when no credential is stored
// for the user.
var ErrNoToken = errors.New("no stored token")

// Calendar is an authenticated handle to one user's calendar.
type Calendar interface {
	Create(ctx context.Context, event *Event) (*Event, error)
	List(ctx context.Context) ([]*Event, error)
	Delete(ctx context.Context, eventID string) error
}

// TokenStore persists one OAuth token per user identity.
type TokenStore interface {
	Load(ctx context.Context, user UserID) (*oauth2.Token, error)
	Save(ctx context.Context, user UserID, token *oauth2.Token) error
}
