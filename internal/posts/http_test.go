package posts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UrielCuriel/prueba-backend/internal/auth"
	"github.com/UrielCuriel/prueba-backend/internal/models"
)

var testSecret = []byte("posts-test-secret")

func newTestRouter(t *testing.T, env *testEnv) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessionStore, err := auth.NewSessionStore(auth.SessionOptions{Kind: "memory", Secret: []byte("session-secret"), TTL: time.Hour})
	require.NoError(t, err)

	router := gin.New()
	router.Use(auth.SessionMiddleware(sessionStore))
	RegisterRoutes(router, env.svc, auth.NewGate(auth.NewTokenCodec(testSecret, time.Hour, ""), time.Hour, nil), nil)
	return router
}

func perform(router *gin.Engine, method, path, body, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func bearerFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := auth.IssueToken(auth.UserSnapshot{ID: user.ID, Username: user.Username, Email: user.Email}, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestPostRoutes(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(t, env)
	ana := env.createUser(t, "ana")

	w := perform(router, http.MethodPost, "/posts", `{"title":"Hello World","content":"body"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(router, http.MethodPost, "/posts", `{"title":"Hello World","content":"body"}`, bearerFor(t, ana))
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "hello-world", created.Slug)
	assert.Equal(t, ana.ID, created.UserID)

	w = perform(router, http.MethodGet, "/posts", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"slug":"hello-world"`)
	assert.NotContains(t, w.Body.String(), "password")

	w = perform(router, http.MethodGet, "/posts/hello-world", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = perform(router, http.MethodGet, "/posts/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(router, http.MethodPost, "/posts", `{"title":"","content":"body"}`, bearerFor(t, ana))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"title"`)
}

func TestCommentRoutes(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(t, env)
	ana := env.createUser(t, "ana")
	_, err := env.svc.Create(context.Background(), ana.ID, CreateInput{Title: "Hello", Content: "body"})
	require.NoError(t, err)

	w := perform(router, http.MethodPost, "/posts/hello/comments", `{"content":"nice"}`, "Bearer invalid_token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), auth.MessageInvalidToken)

	w = perform(router, http.MethodPost, "/posts/hello/comments", `{"content":"nice"}`, bearerFor(t, ana))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = perform(router, http.MethodPost, "/posts/missing/comments", `{"content":"nice"}`, bearerFor(t, ana))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(router, http.MethodGet, "/posts/hello/comments", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var comments []models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comments))
	require.Len(t, comments, 1)
	assert.Equal(t, "nice", comments[0].Content)
}

func TestPostRoutesSameTitle(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(t, env)
	ana := env.createUser(t, "ana")

	var slugs []string
	for _, content := range []string{"first body", "second body"} {
		w := perform(router, http.MethodPost, "/posts", `{"title":"Same","content":"`+content+`"}`, bearerFor(t, ana))
		require.Equal(t, http.StatusCreated, w.Code)
		var created models.Post
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		slugs = append(slugs, created.Slug)
	}
	assert.Equal(t, []string{"same", "same-2"}, slugs)

	w := perform(router, http.MethodGet, "/posts/same-2", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "second body")

	w = perform(router, http.MethodPost, "/posts/same-2/comments", `{"content":"on the second"}`, bearerFor(t, ana))
	assert.Equal(t, http.StatusCreated, w.Code)
	w = perform(router, http.MethodGet, "/posts/same/comments", "", "")
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestPostRoutesDeletedAuthor(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(t, env)
	ana := env.createUser(t, "ana")
	bob := env.createUser(t, "bob")
	_, err := env.svc.Create(context.Background(), ana.ID, CreateInput{Title: "Hello", Content: "body"})
	require.NoError(t, err)

	token := bearerFor(t, bob)
	_, err = env.users.Delete(context.Background(), bob.ID)
	require.NoError(t, err)

	// 削除前に発行されたトークンはゲートを通過するが、書き込みは 403 になる
	w := perform(router, http.MethodPost, "/posts", `{"title":"Ghost","content":"body"}`, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"FORBIDDEN"`)

	w = perform(router, http.MethodPost, "/posts/hello/comments", `{"content":"boo"}`, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
