package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

type fakeAPI struct {
	role     string
	tokens   map[string]bool
	lastAuth string
	upload   struct {
		filename    string
		contentType string
	}
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{role: "user", tokens: map[string]bool{}}

	user := func() User {
		return User{ObjectID: "u1", Username: "alice", Email: "a@x.com", Role: api.role}
	}
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			api.lastAuth = r.Header.Get("Authorization")
			token := strings.TrimPrefix(api.lastAuth, "Bearer ")
			if !api.tokens[token] {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid session"})
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		api.tokens["r:new"] = true
		writeJSON(w, http.StatusCreated, AuthResult{User: user(), SessionToken: "r:new"})
	})
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid username or password"})
			return
		}
		api.tokens["r:login"] = true
		writeJSON(w, http.StatusOK, AuthResult{User: user(), SessionToken: "r:login"})
	})
	mux.HandleFunc("POST /api/auth/logout", authed(func(w http.ResponseWriter, r *http.Request) {
		delete(api.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}))
	mux.HandleFunc("GET /api/auth/me", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, user())
	}))
	mux.HandleFunc("PUT /api/auth/me", authed(func(w http.ResponseWriter, r *http.Request) {
		var upd ProfileUpdate
		_ = json.NewDecoder(r.Body).Decode(&upd)
		u := user()
		if upd.Username != nil {
			u.Username = *upd.Username
		}
		writeJSON(w, http.StatusOK, u)
	}))
	mux.HandleFunc("POST /api/auth/profile-picture", authed(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("profilePicture")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file uploaded"})
			return
		}
		file.Close()
		api.upload.filename = header.Filename
		api.upload.contentType = header.Header.Get("Content-Type")
		u := user()
		u.ProfilePicture = &ProfilePicture{Name: header.Filename, URL: "https://files/" + header.Filename}
		writeJSON(w, http.StatusOK, u)
	}))
	mux.HandleFunc("GET /api/users", authed(func(w http.ResponseWriter, r *http.Request) {
		if api.role != "admin" {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden: Admin access required"})
			return
		}
		writeJSON(w, http.StatusOK, map[string][]User{"results": {user()}})
	}))
	mux.HandleFunc("PUT /api/users/{id}/role", authed(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, User{ObjectID: r.PathValue("id"), Role: body["role"]})
	}))
	mux.HandleFunc("GET /api/activity", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]Activity{"results": {{ActivityType: "login", Metadata: map[string]any{"limit": r.URL.Query().Get("limit")}}}})
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api, srv
}

func newTestSession(t *testing.T, baseURL string) (*Session, FileTokenStore) {
	t.Helper()
	store := FileTokenStore{Path: filepath.Join(t.TempDir(), "auth", "token")}
	return NewSession(New(baseURL, nil), store), store
}

func TestSession_LoginPersistsToken(t *testing.T) {
	_, srv := newFakeAPI(t)
	sess, store := newTestSession(t, srv.URL)
	ctx := context.Background()

	user, err := sess.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.False(t, sess.IsAdmin())

	token, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "r:login", token)

	info, err := os.Stat(store.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSession_LoginFailure(t *testing.T) {
	_, srv := newFakeAPI(t)
	sess, store := newTestSession(t, srv.URL)

	_, err := sess.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid username or password", apiErr.Message)

	token, _ := store.Load()
	assert.Empty(t, token)
	assert.Nil(t, sess.User())
}

func TestSession_RestoreValidToken(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.tokens["r:saved"] = true
	api.role = "admin"
	sess, store := newTestSession(t, srv.URL)
	require.NoError(t, store.Save("r:saved"))

	require.NoError(t, sess.Restore(context.Background()))
	require.NotNil(t, sess.User())
	assert.True(t, sess.IsAdmin())
	assert.Equal(t, "Bearer r:saved", api.lastAuth)
}

func TestSession_RestoreClearsRejectedToken(t *testing.T) {
	_, srv := newFakeAPI(t)
	sess, store := newTestSession(t, srv.URL)
	require.NoError(t, store.Save("r:stale"))

	require.NoError(t, sess.Restore(context.Background()))
	assert.Nil(t, sess.User())
	assert.Empty(t, sess.Token())

	_, err := os.Stat(store.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSession_Logout(t *testing.T) {
	api, srv := newFakeAPI(t)
	sess, store := newTestSession(t, srv.URL)
	ctx := context.Background()

	assert.ErrorIs(t, sess.Logout(ctx), ErrNotLoggedIn)

	_, err := sess.Signup(ctx, "alice", "a@x.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, sess.Logout(ctx))

	assert.False(t, api.tokens["r:new"])
	token, _ := store.Load()
	assert.Empty(t, token)
}

func TestSession_UpdateAndUpload(t *testing.T) {
	api, srv := newFakeAPI(t)
	sess, _ := newTestSession(t, srv.URL)
	ctx := context.Background()

	_, err := sess.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	name := "alice2"
	user, err := sess.UpdateProfile(ctx, ProfileUpdate{Username: &name})
	require.NoError(t, err)
	assert.Equal(t, "alice2", user.Username)
	assert.Equal(t, "alice2", sess.User().Username)

	user, err = sess.UploadProfilePicture(ctx, "/tmp/me.png", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	require.NotNil(t, user.ProfilePicture)
	assert.Equal(t, "me.png", api.upload.filename)
	assert.Equal(t, "image/png", api.upload.contentType)
}

func TestClient_AdminCalls(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.tokens["r:admin"] = true
	c := New(srv.URL+"/", nil)
	ctx := context.Background()

	_, err := c.ListUsers(ctx, "r:admin")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.NotErrorIs(t, err, ErrUnauthorized)

	api.role = "admin"
	users, err := c.ListUsers(ctx, "r:admin")
	require.NoError(t, err)
	assert.Len(t, users, 1)

	updated, err := c.UpdateUserRole(ctx, "r:admin", "u2", "admin")
	require.NoError(t, err)
	assert.Equal(t, "u2", updated.ObjectID)
	assert.True(t, updated.IsAdmin())

	entries, err := c.ListActivity(ctx, "r:admin", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "5", entries[0].Metadata["limit"])
}
