// Package client is a typed Go client for the authgate HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnauthorized is returned for 401 responses.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

type ProfilePicture struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type User struct {
	ObjectID       string          `json:"objectId"`
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	Role           string          `json:"role"`
	EmailVerified  bool            `json:"emailVerified"`
	ProfilePicture *ProfilePicture `json:"profilePicture,omitempty"`
	CreatedAt      string          `json:"createdAt"`
	UpdatedAt      string          `json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == "admin"
}

type AuthResult struct {
	User         User   `json:"user"`
	SessionToken string `json:"sessionToken"`
}

type Activity struct {
	ObjectID     string         `json:"objectId"`
	UserID       string         `json:"userId"`
	Username     string         `json:"username"`
	ActivityType string         `json:"activityType"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"createdAt"`
}

// ProfileUpdate carries the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) Signup(ctx context.Context, username, email, password string) (*AuthResult, error) {
	var out AuthResult
	body := map[string]string{"username": username, "email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/signup", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	var out AuthResult
	body := map[string]string{"username": username, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth/logout", token, nil, nil)
}

func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateMe(ctx context.Context, token string, update ProfileUpdate) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodPut, "/api/auth/me", token, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteMe(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/auth/me", token, nil, nil)
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth/reset-password", "", map[string]string{"email": email}, nil)
}

func (c *Client) ResendVerification(ctx context.Context, email string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth/verify-email", "", map[string]string{"email": email}, nil)
}

// UploadProfilePicture sends content as the profilePicture form file. The part's
// content type is sniffed from the first bytes of content.
func (c *Client) UploadProfilePicture(ctx context.Context, token, filename string, content io.Reader) (*User, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="profilePicture"; filename=%q`, filepath.Base(filename)))
	hdr.Set("Content-Type", mimetype.Detect(data).String())
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/profile-picture", token, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out User
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveProfilePicture(ctx context.Context, token string) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodDelete, "/api/auth/profile-picture", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListUsers(ctx context.Context, token string) ([]User, error) {
	var out struct {
		Results []User `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/users", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) DeleteUser(ctx context.Context, token, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(id), token, nil, nil)
}

func (c *Client) UpdateUserRole(ctx context.Context, token, id, role string) (*User, error) {
	var out User
	path := "/api/users/" + url.PathEscape(id) + "/role"
	if err := c.doJSON(ctx, http.MethodPut, path, token, map[string]string{"role": role}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListActivity(ctx context.Context, token string, limit int) ([]Activity, error) {
	path := "/api/activity"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Results []Activity `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := c.newRequest(ctx, method, path, token, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var payload struct {
			Error string `json:"error"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
