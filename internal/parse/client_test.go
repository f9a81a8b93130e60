package parse

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c, err := NewClient(Config{
		ServerURL: srv.URL + "/parse",
		AppID:     "app",
		RESTKey:   "rest",
		MasterKey: "master",
		Logger:    logger,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresKeys(t *testing.T) {
	_, err := NewClient(Config{ServerURL: "http://x", AppID: "a", RESTKey: "r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "master key")

	_, err = NewClient(Config{AppID: "a", RESTKey: "r", MasterKey: "m"})
	require.Error(t, err)
}

func TestSignUp_SendsMasterKeyAndRole(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/parse/users", r.URL.Path)
		assert.Equal(t, "app", r.Header.Get(headerAppID))
		assert.Equal(t, "rest", r.Header.Get(headerRESTKey))
		assert.Equal(t, "master", r.Header.Get(headerMasterKey))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["username"])
		assert.Equal(t, "user", body["role"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"objectId":"u1","createdAt":"2024-05-01T10:00:00.000Z","sessionToken":"r:abc"}`)
	})

	user, token, err := c.SignUp(context.Background(), "alice", "a@x.com", "secret1", domain.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, "r:abc", token)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.Equal(t, user.CreatedAt, user.UpdatedAt)
}

func TestLogIn_DecodesParseError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(headerMasterKey))
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":101,"error":"Invalid username/password."}`)
	})

	_, _, err := c.LogIn(context.Background(), "alice", "nope")
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, CodeObjectNotFound, perr.Code)
	assert.Equal(t, http.StatusNotFound, perr.Status)
	assert.Equal(t, "Invalid username/password.", perr.Error())
}

func TestCurrentUser_UsesSessionToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parse/users/me", r.URL.Path)
		assert.Equal(t, "r:tok", r.Header.Get(headerSessionToken))
		assert.Empty(t, r.Header.Get(headerMasterKey))
		_, _ = io.WriteString(w, `{"objectId":"u1","username":"alice","email":"a@x.com","role":"admin","emailVerified":true,
			"profilePicture":{"name":"p.png","url":"https://files/p.png"},
			"createdAt":"2024-05-01T10:00:00.000Z","updatedAt":"2024-05-02T10:00:00.000Z"}`)
	})

	user, err := c.CurrentUser(context.Background(), "r:tok")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)
	assert.True(t, user.EmailVerified)
	require.NotNil(t, user.ProfilePicture)
	assert.Equal(t, "https://files/p.png", user.ProfilePicture.URL)
}

func TestCurrentUser_InvalidSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":209,"error":"Invalid session token"}`)
	})

	_, err := c.CurrentUser(context.Background(), "r:gone")
	require.Error(t, err)
	assert.True(t, IsInvalidSession(err))
	assert.False(t, IsNotFound(err))
}

func TestUpdateUser_ClearsPictureAndRefetches(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPut:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, map[string]any{"__op": "Delete"}, body["profilePicture"])
			_, _ = io.WriteString(w, `{"updatedAt":"2024-05-03T10:00:00.000Z"}`)
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"objectId":"u1","username":"alice","createdAt":"2024-05-01T10:00:00.000Z","updatedAt":"2024-05-03T10:00:00.000Z"}`)
		}
	})

	user, err := c.UpdateUser(context.Background(), "u1", UserChanges{ClearProfilePicture: true})
	require.NoError(t, err)
	assert.Nil(t, user.ProfilePicture)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.Equal(t, []string{"PUT /parse/users/u1", "GET /parse/users/u1"}, calls)
}

func TestListUsers_OrdersNewestFirst(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "-createdAt", r.URL.Query().Get("order"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `{"results":[{"objectId":"b","username":"bob"},{"objectId":"a","username":"alice","role":"admin"}]}`)
	})

	users, err := c.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].Username)
	assert.Equal(t, domain.RoleAdmin, users[1].Role)
}

func TestUploadFile_RawBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parse/files/avatar.png", r.URL.Path)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "PNGDATA", string(b))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"name":"abc_avatar.png","url":"https://files/abc_avatar.png"}`)
	})

	name, url, err := c.UploadFile(context.Background(), "avatar.png", "image/png", strings.NewReader("PNGDATA"))
	require.NoError(t, err)
	assert.Equal(t, "abc_avatar.png", name)
	assert.Equal(t, "https://files/abc_avatar.png", url)
}

func TestDecodeError_NonJSONBody(t *testing.T) {
	err := decodeError(http.StatusBadGateway, []byte("upstream down"))
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "upstream down", perr.Message)

	err = decodeError(http.StatusServiceUnavailable, nil)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), perr.Message)
}
