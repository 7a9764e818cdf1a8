// Package auth runs the interactive browser-based consent flow that grants
// the bot access to a user's calendar.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const defaultTimeout = 5 * time.Minute

// Flow performs a one-time authorization grant: it listens on an ephemeral
// loopback port, directs the operator's browser to the provider's consent
// page, and exchanges the returned code for a token.
type Flow struct {
	oauth   *oauth2.Config
	timeout time.Duration
}

// New creates a Flow for the given OAuth config. The config's RedirectURL
// is replaced per attempt with the loopback listener's address.
func New(cfg *oauth2.Config) *Flow {
	return &Flow{oauth: cfg, timeout: defaultTimeout}
}

// Authorize runs the consent flow and returns a fresh token. Offline access
// is requested so the token carries a refresh token.
func (f *Flow) Authorize(ctx context.Context) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}
	defer ln.Close()

	cfg := *f.oauth
	cfg.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

	state := uuid.New().String()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{Handler: callbackHandler(state, codeCh, errCh)}
	go srv.Serve(ln)
	defer srv.Close()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("Open this URL in your browser to authorize calendar access:\n%s\n", authURL)
	slog.Info("waiting for authorization grant", "redirect", cfg.RedirectURL)

	select {
	case code := <-codeCh:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchange auth code: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-time.After(f.timeout):
		return nil, errors.New("authorization timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// callbackHandler accepts the provider redirect, checks the state nonce,
// and delivers the authorization code.
func callbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- errors.New("authorization state mismatch")
			return
		}
		if errMsg := q.Get("error"); errMsg != "" {
			http.Error(w, errMsg, http.StatusBadRequest)
			errCh <- fmt.Errorf("authorization denied: %s", errMsg)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			errCh <- errors.New("authorization response missing code")
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this tab.")
		codeCh <- code
	}
}
