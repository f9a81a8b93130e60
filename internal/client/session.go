package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotLoggedIn is returned by Session operations that need a stored token.
var ErrNotLoggedIn = errors.New("not logged in")

// TokenStore persists a single session token.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileTokenStore keeps the token in a file readable only by its owner.
type FileTokenStore struct {
	Path string
}

func (s FileTokenStore) Load() (string, error) {
	raw, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

func (s FileTokenStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// Session tracks the logged-in user on top of a Client.
type Session struct {
	client *Client
	store  TokenStore

	token string
	user  *User
}

func NewSession(client *Client, store TokenStore) *Session {
	return &Session{client: client, store: store}
}

// Restore loads the stored token and resolves it. An unusable token is cleared
// without reporting an error; the session is then simply logged out.
func (s *Session) Restore(ctx context.Context) error {
	token, err := s.store.Load()
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}

	user, err := s.client.Me(ctx, token)
	if err != nil {
		s.reset()
		return nil
	}
	s.token, s.user = token, user
	return nil
}

func (s *Session) Signup(ctx context.Context, username, email, password string) (*User, error) {
	res, err := s.client.Signup(ctx, username, email, password)
	if err != nil {
		return nil, err
	}
	return s.adopt(res)
}

func (s *Session) Login(ctx context.Context, username, password string) (*User, error) {
	res, err := s.client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.adopt(res)
}

// Logout ends the server session. Local state is cleared even if the server call fails.
func (s *Session) Logout(ctx context.Context) error {
	if s.token == "" {
		return ErrNotLoggedIn
	}
	err := s.client.Logout(ctx, s.token)
	s.reset()
	return err
}

// Refresh re-reads the current user from the server.
func (s *Session) Refresh(ctx context.Context) (*User, error) {
	if s.token == "" {
		return nil, ErrNotLoggedIn
	}
	user, err := s.client.Me(ctx, s.token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			s.reset()
		}
		return nil, err
	}
	s.user = user
	return user, nil
}

func (s *Session) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	if s.token == "" {
		return nil, ErrNotLoggedIn
	}
	user, err := s.client.UpdateMe(ctx, s.token, update)
	if err != nil {
		return nil, err
	}
	s.user = user
	return user, nil
}

func (s *Session) DeleteAccount(ctx context.Context) error {
	if s.token == "" {
		return ErrNotLoggedIn
	}
	if err := s.client.DeleteMe(ctx, s.token); err != nil {
		return err
	}
	s.reset()
	return nil
}

func (s *Session) UploadProfilePicture(ctx context.Context, filename string, content io.Reader) (*User, error) {
	if s.token == "" {
		return nil, ErrNotLoggedIn
	}
	user, err := s.client.UploadProfilePicture(ctx, s.token, filename, content)
	if err != nil {
		return nil, err
	}
	s.user = user
	return user, nil
}

func (s *Session) RemoveProfilePicture(ctx context.Context) (*User, error) {
	if s.token == "" {
		return nil, ErrNotLoggedIn
	}
	user, err := s.client.RemoveProfilePicture(ctx, s.token)
	if err != nil {
		return nil, err
	}
	s.user = user
	return user, nil
}

func (s *Session) User() *User {
	return s.user
}

func (s *Session) Token() string {
	return s.token
}

// IsAdmin reports the role last seen by this session. The server re-checks on every admin call.
func (s *Session) IsAdmin() bool {
	return s.user.IsAdmin()
}

func (s *Session) adopt(res *AuthResult) (*User, error) {
	if err := s.store.Save(res.SessionToken); err != nil {
		return nil, err
	}
	user := res.User
	s.token, s.user = res.SessionToken, &user
	return s.user, nil
}

func (s *Session) reset() {
	s.token, s.user = "", nil
	_ = s.store.Clear()
}
