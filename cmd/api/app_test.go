package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UrielCuriel/prueba-backend/internal/auth"
	"github.com/UrielCuriel/prueba-backend/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Port:               "0",
		GinMode:            gin.TestMode,
		CORSAllowedOrigins: "http://localhost:5173",
		DatabaseDSN:        "file:" + t.Name() + "?mode=memory&cache=shared",
		JWTSecret:          "integration-secret",
		JWTExpiresIn:       time.Hour,
		JWTIssuer:          "prueba-backend",
		SessionSecret:      "integration-session",
		SessionTTL:         time.Hour,
		SessionStore:       config.SessionStoreMemory,
		LoginMaxAttempts:   3,
		LoginWindow:        time.Minute,
		LoginLockDuration:  time.Minute,
		BcryptCost:         4,
	}
}

type client struct {
	t       *testing.T
	handler http.Handler
}

func newTestClient(t *testing.T, cfg *config.Config) *client {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.close() })

	return &client{t: t, handler: a.server.Handler}
}

func (c *client) do(method, path string, body any, header http.Header, cookie *http.Cookie) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	return w
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func findSessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestBlogFlow(t *testing.T) {
	c := newTestClient(t, testConfig(t))

	w := c.do(http.MethodGet, "/health", nil, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = c.do(http.MethodPost, "/users", map[string]string{
		"username": "ana", "email": "a@x.com", "password": "secret",
	}, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")

	// 未認証では投稿できない
	w = c.do(http.MethodPost, "/posts", map[string]string{"title": "Hello World", "content": "body"}, nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":{"statusCode":401,"name":"UnauthorizedError","message":"Missing Authorization Header"}}`, w.Body.String())

	w = c.do(http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "secret"}, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	// トークンで投稿すると、その応答でセッションが作られる
	w = c.do(http.MethodPost, "/posts", map[string]string{"title": "Hello World", "content": "body"}, bearer(login.Token), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cookie := findSessionCookie(w)
	require.NotNil(t, cookie)

	// 以降は Cookie だけで通る
	w = c.do(http.MethodPost, "/posts/hello-world/comments", map[string]string{"content": "first!"}, nil, cookie)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = c.do(http.MethodGet, "/posts/hello-world/comments", nil, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "first!")

	w = c.do(http.MethodGet, "/auth/validate", nil, bearer(login.Token), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"a@x.com"`)

	w = c.do(http.MethodGet, "/auth/me", nil, nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = c.do(http.MethodPost, "/auth/logout", nil, nil, cookie)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = c.do(http.MethodGet, "/auth/me", nil, nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeletedUserTokenStillPassesGate(t *testing.T) {
	c := newTestClient(t, testConfig(t))

	w := c.do(http.MethodPost, "/users", map[string]string{
		"username": "ana", "email": "a@x.com", "password": "secret",
	}, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var user struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))

	w = c.do(http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "secret"}, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))

	w = c.do(http.MethodDelete, "/users/"+strconv.FormatInt(user.ID, 10), nil, bearer(login.Token), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	// /auth/validate はユーザーを再取得するため 404 になる
	w = c.do(http.MethodGet, "/auth/validate", nil, bearer(login.Token), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// ゲートは署名と期限のみを確認する
	w = c.do(http.MethodGet, "/auth/me", nil, bearer(login.Token), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 書き込みは存在しない著者として 403 になる
	w = c.do(http.MethodPost, "/posts", map[string]string{"title": "Ghost", "content": "body"}, bearer(login.Token), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoginLockout(t *testing.T) {
	c := newTestClient(t, testConfig(t))

	for i := 0; i < 3; i++ {
		w := c.do(http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "wrong"}, nil, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := c.do(http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "wrong"}, nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestEphemeralSecrets(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWTSecret = ""
	cfg.SessionSecret = ""
	c := newTestClient(t, cfg)

	w := c.do(http.MethodGet, "/health", nil, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
