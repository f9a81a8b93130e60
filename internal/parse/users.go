package parse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"authgate/internal/domain"
)

// listUsersLimit matches the page size the admin user list has always used.
const listUsersLimit = 1000

type fileRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type userObject struct {
	ObjectID       string    `json:"objectId"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	EmailVerified  bool      `json:"emailVerified"`
	ProfilePicture *fileRef  `json:"profilePicture,omitempty"`
	SessionToken   string    `json:"sessionToken,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (o userObject) toDomain() *domain.User {
	user := &domain.User{
		ID:            o.ObjectID,
		Username:      o.Username,
		Email:         o.Email,
		Role:          domain.ParseRole(o.Role),
		EmailVerified: o.EmailVerified,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.ProfilePicture != nil && o.ProfilePicture.URL != "" {
		user.ProfilePicture = &domain.ProfilePicture{
			Name: o.ProfilePicture.Name,
			URL:  o.ProfilePicture.URL,
		}
	}
	return user
}

// UserChanges lists the fields to write on a user record. Nil fields are left untouched.
type UserChanges struct {
	Username            *string
	Email               *string
	Password            *string
	Role                *domain.Role
	ProfilePicture      *domain.ProfilePicture
	ClearProfilePicture bool
}

func (ch UserChanges) body() map[string]any {
	body := map[string]any{}
	if ch.Username != nil {
		body["username"] = *ch.Username
	}
	if ch.Email != nil {
		body["email"] = *ch.Email
	}
	if ch.Password != nil {
		body["password"] = *ch.Password
	}
	if ch.Role != nil {
		body["role"] = string(*ch.Role)
	}
	if ch.ProfilePicture != nil {
		body["profilePicture"] = fileRef{Name: ch.ProfilePicture.Name, URL: ch.ProfilePicture.URL}
	}
	if ch.ClearProfilePicture {
		body["profilePicture"] = map[string]string{"__op": "Delete"}
	}
	return body
}

// SignUp creates a user with the given role and returns it together with its new session token.
func (c *Client) SignUp(ctx context.Context, username, email, password string, role domain.Role) (*domain.User, string, error) {
	in := map[string]any{
		"username": username,
		"email":    email,
		"password": password,
		"role":     string(role),
	}
	var out struct {
		ObjectID     string    `json:"objectId"`
		CreatedAt    time.Time `json:"createdAt"`
		SessionToken string    `json:"sessionToken"`
	}
	if err := c.doJSON(ctx, "signup", http.MethodPost, "users", nil, asMaster, in, &out); err != nil {
		return nil, "", err
	}

	user := &domain.User{
		ID:        out.ObjectID,
		Username:  username,
		Email:     email,
		Role:      role,
		CreatedAt: out.CreatedAt,
		UpdatedAt: out.CreatedAt,
	}
	return user, out.SessionToken, nil
}

func (c *Client) LogIn(ctx context.Context, username, password string) (*domain.User, string, error) {
	in := map[string]string{
		"username": username,
		"password": password,
	}
	var out userObject
	if err := c.doJSON(ctx, "login", http.MethodPost, "login", nil, asApp, in, &out); err != nil {
		return nil, "", err
	}
	return out.toDomain(), out.SessionToken, nil
}

// LogOut revokes the session identified by token.
func (c *Client) LogOut(ctx context.Context, token string) error {
	return c.doJSON(ctx, "logout", http.MethodPost, "logout", nil, asSession(token), nil, nil)
}

// CurrentUser resolves a session token to the user that owns it.
func (c *Client) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	var out userObject
	if err := c.doJSON(ctx, "me", http.MethodGet, "users/me", nil, asSession(token), nil, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, fmt.Errorf("user id is required")
	}
	var out userObject
	if err := c.doJSON(ctx, "get_user", http.MethodGet, "users/"+url.PathEscape(id), nil, asMaster, nil, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

// UpdateUser applies changes with the master key and returns the refreshed record.
func (c *Client) UpdateUser(ctx context.Context, id string, changes UserChanges) (*domain.User, error) {
	if id == "" {
		return nil, fmt.Errorf("user id is required")
	}
	body := changes.body()
	if len(body) > 0 {
		if err := c.doJSON(ctx, "update_user", http.MethodPut, "users/"+url.PathEscape(id), nil, asMaster, body, nil); err != nil {
			return nil, err
		}
	}
	return c.GetUser(ctx, id)
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("user id is required")
	}
	return c.doJSON(ctx, "delete_user", http.MethodDelete, "users/"+url.PathEscape(id), nil, asMaster, nil, nil)
}

// ListUsers returns users newest first.
func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	query := url.Values{}
	query.Set("order", "-createdAt")
	query.Set("limit", strconv.Itoa(listUsersLimit))

	var out struct {
		Results []userObject `json:"results"`
	}
	if err := c.doJSON(ctx, "list_users", http.MethodGet, "users", query, asMaster, nil, &out); err != nil {
		return nil, err
	}

	users := make([]domain.User, len(out.Results))
	for i := range out.Results {
		users[i] = *out.Results[i].toDomain()
	}
	return users, nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	in := map[string]string{"email": email}
	return c.doJSON(ctx, "password_reset", http.MethodPost, "requestPasswordReset", nil, asApp, in, nil)
}

func (c *Client) RequestVerificationEmail(ctx context.Context, email string) error {
	in := map[string]string{"email": email}
	return c.doJSON(ctx, "verification_email", http.MethodPost, "verificationEmailRequest", nil, asApp, in, nil)
}
