package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quicknotes/internal/config"
	"quicknotes/internal/domain"
	"quicknotes/internal/middleware"
	"quicknotes/internal/repository"
	"quicknotes/internal/service"
	"quicknotes/pkg/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:                 "handler-test-secret",
			Expiration:             15 * time.Minute,
			RefreshTokenExpiration: time.Hour,
		},
		CORS: config.CORSConfig{
			AllowedOrigins: "*",
			AllowedMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
			AllowedHeaders: "Content-Type,Authorization",
		},
	}
}

func newTestRouter(t *testing.T, limiter *middleware.RateLimiter) http.Handler {
	t.Helper()
	db, err := repository.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := testConfig()
	users := repository.NewSQLiteUserRepository(db)
	services := Services{
		Auth:  service.NewAuthService(users, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration).WithHashCost(4),
		Users: service.NewUserService(users),
		Notes: service.NewNoteService(repository.NewSQLiteNoteRepository(db)),
	}
	return NewRouter(cfg, services, limiter)
}

func do(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) response.Envelope[T] {
	t.Helper()
	var env response.Envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

// signUp registers a user and returns their user id and access token.
func signUp(t *testing.T, h http.Handler, username string) (string, string) {
	t.Helper()
	email := username + "@example.com"
	rec := do(t, h, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Username: username, Email: email, Password: "Password123!",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Email: email, Password: "Password123!"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[domain.LoginResponse](t, rec)
	require.NotNil(t, login.Data.User)
	return login.Data.User.ID, login.Data.AccessToken
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec).Data["status"])
}

func TestNoteLifecycle(t *testing.T) {
	h := newTestRouter(t, nil)
	_, token := signUp(t, h, "alice")

	rec := do(t, h, http.MethodPost, "/api/v1/notes", token, domain.CreateNoteRequest{Title: "Groceries", Body: "milk"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Note](t, rec).Data
	assert.NotEmpty(t, created.ID)

	rec = do(t, h, http.MethodPost, "/api/v1/notes", token, domain.CreateNoteRequest{Body: "second"})
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[domain.Note](t, rec).Data
	assert.Equal(t, domain.UntitledNote, second.Title)

	rec = do(t, h, http.MethodGet, "/api/v1/notes", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]domain.Note](t, rec).Data
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	title := "Shopping"
	rec = do(t, h, http.MethodPatch, "/api/v1/notes/"+created.ID, token, domain.NoteFields{Title: &title})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.Note](t, rec).Data
	assert.Equal(t, "Shopping", updated.Title)
	assert.Equal(t, "milk", updated.Body)

	rec = do(t, h, http.MethodDelete, "/api/v1/notes/"+created.ID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/notes/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/notes/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotesAreOwnerScoped(t *testing.T) {
	h := newTestRouter(t, nil)
	aliceID, alice := signUp(t, h, "alice")
	_, bob := signUp(t, h, "bob")

	rec := do(t, h, http.MethodPost, "/api/v1/notes?owner="+aliceID, alice, domain.CreateNoteRequest{Title: "private"})
	require.Equal(t, http.StatusCreated, rec.Code)
	note := decode[domain.Note](t, rec).Data

	title := "hijacked"
	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"get", http.MethodGet, "/api/v1/notes/" + note.ID, nil},
		{"patch", http.MethodPatch, "/api/v1/notes/" + note.ID, domain.NoteFields{Title: &title}},
		{"delete", http.MethodDelete, "/api/v1/notes/" + note.ID, nil},
		{"list as other owner", http.MethodGet, "/api/v1/notes?owner=" + aliceID, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, bob, tt.body)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}

	rec = do(t, h, http.MethodGet, "/api/v1/notes", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]domain.Note](t, rec).Data)
}

func TestNoteValidation(t *testing.T) {
	h := newTestRouter(t, nil)
	_, token := signUp(t, h, "alice")

	rec := do(t, h, http.MethodPost, "/api/v1/notes", token, domain.CreateNoteRequest{Title: "  ", Body: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/notes", token, domain.CreateNoteRequest{Title: strings.Repeat("t", 201)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notes", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	bad := httptest.NewRecorder()
	h.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestAuthErrors(t *testing.T) {
	h := newTestRouter(t, nil)
	signUp(t, h, "alice")

	rec := do(t, h, http.MethodGet, "/api/v1/notes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Username: "alice", Email: "other@example.com", Password: "Password123!",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Email: "alice@example.com", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, decode[json.RawMessage](t, rec).Success)
}

func TestAuthRefresh(t *testing.T) {
	h := newTestRouter(t, nil)
	signUp(t, h, "alice")

	rec := do(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Email: "alice@example.com", Password: "Password123!"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[domain.LoginResponse](t, rec).Data

	rec = do(t, h, http.MethodPost, "/api/v1/auth/refresh", "", domain.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	renewed := decode[domain.TokenResponse](t, rec).Data
	assert.NotEmpty(t, renewed.AccessToken)

	rec = do(t, h, http.MethodGet, "/api/v1/notes", renewed.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/auth/refresh", "", domain.RefreshTokenRequest{RefreshToken: login.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired refresh token", decode[json.RawMessage](t, rec).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader("{"))
	bad := httptest.NewRecorder()
	h.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestUpdateMe(t *testing.T) {
	h := newTestRouter(t, nil)
	_, token := signUp(t, h, "alice")

	useCase := "study"
	rec := do(t, h, http.MethodPut, "/api/v1/users/me", token, domain.UpdateProfileRequest{UseCase: &useCase})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "study", decode[domain.User](t, rec).Data.UseCase)

	rec = do(t, h, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[domain.User](t, rec).Data
	assert.Equal(t, "study", me.UseCase)
	assert.Empty(t, me.Password)

	invalid := "gaming"
	rec = do(t, h, http.MethodPut, "/api/v1/users/me", token, domain.UpdateProfileRequest{UseCase: &invalid})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/v1/users/me", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitedLogin(t *testing.T) {
	h := newTestRouter(t, middleware.NewRateLimiter(1, 1))

	body := domain.LoginRequest{Email: "ghost@example.com", Password: "whatever1"}
	first := do(t, h, http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusUnauthorized, first.Code)

	second := do(t, h, http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
