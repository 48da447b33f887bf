package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// LoginTimeout bounds how long Login waits for the browser redirect
const LoginTimeout = 5 * time.Minute

// OAuth2Config holds OAuth2 configuration
type OAuth2Config struct {
	TenantID    string
	ClientID    string
	RedirectURL string
	Scopes      []string
	Store       TokenStore

	// Endpoint overrides the Microsoft identity endpoint
	Endpoint *oauth2.Endpoint
}

// NewOAuth2Config creates a new OAuth2 configuration
func NewOAuth2Config(tenantID, clientID, redirectURL string, store TokenStore, scopes ...string) *OAuth2Config {
	return &OAuth2Config{
		TenantID:    tenantID,
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Scopes:      scopes,
		Store:       store,
	}
}

// Config returns the oauth2 configuration for the tenant
func (c *OAuth2Config) Config() *oauth2.Config {
	endpoint := microsoft.AzureADEndpoint(c.TenantID)
	if c.Endpoint != nil {
		endpoint = *c.Endpoint
	}
	return &oauth2.Config{
		ClientID:    c.ClientID,
		RedirectURL: c.RedirectURL,
		Scopes:      c.Scopes,
		Endpoint:    endpoint,
	}
}

// TokenSource returns a source that refreshes the stored token and saves
// every new one. Without a stored token, Token fails with ErrNoToken.
func (c *OAuth2Config) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &persistingSource{ctx: ctx, config: c.Config(), store: c.Store}
}

// persistingSource lazily loads the stored token and writes back refreshes
type persistingSource struct {
	ctx    context.Context
	config *oauth2.Config
	store  TokenStore

	mu   sync.Mutex
	base oauth2.TokenSource
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.base == nil {
		stored, err := s.store.Load()
		if err != nil {
			return nil, err
		}
		s.base = s.config.TokenSource(s.ctx, stored)
		s.last = stored.AccessToken
	}

	token, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := s.store.Save(token); err != nil {
			return nil, fmt.Errorf("could not save refreshed token: %w", err)
		}
	}
	return token, nil
}

// Login runs the authorization-code flow with PKCE through a local redirect
// server, stores the token and returns it. openURL is given the URL the user
// must visit.
func (c *OAuth2Config) Login(ctx context.Context, openURL func(authURL string) error) (*oauth2.Token, error) {
	redirect, err := url.Parse(c.RedirectURL)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("invalid redirect URL %q", c.RedirectURL)
	}

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("local server error: %w", err)
	}
	// a :0 port is replaced by the one actually bound
	redirect.Host = listener.Addr().String()

	config := c.Config()
	config.RedirectURL = redirect.String()

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	mux := http.NewServeMux()
	path := redirect.Path
	if path == "" {
		path = "/"
	}
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "Authorization error: state mismatch.", http.StatusBadRequest)
			sendErr(errorChan, errors.New("authorization state mismatch"))
		case q.Get("error") != "":
			http.Error(w, "Authorization error: "+q.Get("error_description"), http.StatusBadRequest)
			sendErr(errorChan, fmt.Errorf("authorization denied: %s", q.Get("error")))
		case q.Get("code") == "":
			http.Error(w, "Authorization error: code not received.", http.StatusBadRequest)
			sendErr(errorChan, errors.New("authorization code not received"))
		default:
			_, _ = w.Write([]byte("<html><body><h2>Authorization successful</h2><p>You can close this window and return to the application.</p></body></html>"))
			select {
			case codeChan <- q.Get("code"):
			default:
			}
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sendErr(errorChan, err)
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	if err := openURL(authURL); err != nil {
		return nil, err
	}

	var code string
	select {
	case code = <-codeChan:
	case err := <-errorChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(LoginTimeout):
		return nil, fmt.Errorf("authorization timeout exceeded")
	}

	token, err := config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("could not exchange authorization code for token: %w", err)
	}
	if err := c.Store.Save(token); err != nil {
		return nil, err
	}
	return token, nil
}

// Logout forgets the stored token
func (c *OAuth2Config) Logout() error {
	return c.Store.Delete()
}

func sendErr(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}
