package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rakadenta/cakeorder/internal/hash"
	mw "github.com/rakadenta/cakeorder/internal/middleware"
	"github.com/rakadenta/cakeorder/internal/models"
	"github.com/rakadenta/cakeorder/internal/repo"
	"github.com/rakadenta/cakeorder/internal/service"
	"github.com/rakadenta/cakeorder/internal/tokens"
)

type testEnv struct {
	t  *testing.T
	e  *echo.Echo
	db *gorm.DB
	rp *repo.GormRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.RefreshToken{}))

	rp := &repo.GormRepo{DB: db}
	codec := &tokens.Codec{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
	authSvc := &service.AuthService{Repo: rp, Codec: codec}
	userSvc := &service.UserService{Repo: rp}

	e := echo.New()
	Register(e, &Deps{
		AuthHandler:  &AuthHTTP{Svc: authSvc},
		UserHandler:  &UserHTTP{Users: userSvc, Auth: authSvc},
		AdminHandler: &AdminHTTP{},
		Auth:         mw.NewAuthMiddleware(codec, userSvc),
	})

	return &testEnv{t: t, e: e, db: db, rp: rp}
}

func (env *testEnv) do(method, path string, body any, access string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	env.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(env.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if access != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+access)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func refreshCookieOf(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh" {
			return c
		}
	}
	t.Fatal("no refresh cookie in response")
	return nil
}

func accessTokenOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Status string `json:"status"`
		Data   struct {
			Access string `json:"access"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.Access)
	return body.Data.Access
}

func registerBody() map[string]string {
	return map[string]string{
		"name":     "Alice",
		"username": "alice1",
		"email":    "a@x.com",
		"password": "password1",
	}
}

func loginBody() map[string]string {
	return map[string]string{"username": "alice1", "password": "password1"}
}

func TestRegister_Endpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/auth/register", registerBody(), "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "success")

	// duplicate username
	rec = env.do(http.MethodPost, "/api/v1/auth/register", registerBody(), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// validation failures
	bad := registerBody()
	bad["username"] = "a!"
	rec = env.do(http.MethodPost, "/api/v1/auth/register", bad, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_Endpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/auth/register", registerBody(), "").Code)

	rec := env.do(http.MethodPost, "/api/v1/auth/login", loginBody(), "")
	require.Equal(t, http.StatusCreated, rec.Code)

	cookie := refreshCookieOf(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)
	assert.NotEmpty(t, accessTokenOf(t, rec))
}

func TestLogin_SameResponseForUnknownUserAndWrongPassword(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/auth/register", registerBody(), "").Code)

	unknown := env.do(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"username": "nosuchuser", "password": "password1"}, "")
	wrongPass := env.do(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"username": "alice1", "password": "wrongpassword"}, "")

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)
	assert.Equal(t, unknown.Body.String(), wrongPass.Body.String())
}

func TestAuth_RoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/auth/register", registerBody(), "").Code)

	loginRec := env.do(http.MethodPost, "/api/v1/auth/login", loginBody(), "")
	require.Equal(t, http.StatusCreated, loginRec.Code)
	loginCookie := refreshCookieOf(t, loginRec)

	// refresh rotates the cookie and issues a new access token
	refreshRec := env.do(http.MethodPost, "/api/v1/auth/refresh", nil, "", loginCookie)
	require.Equal(t, http.StatusCreated, refreshRec.Code)
	rotatedCookie := refreshCookieOf(t, refreshRec)
	assert.NotEqual(t, loginCookie.Value, rotatedCookie.Value)
	assert.NotEmpty(t, accessTokenOf(t, refreshRec))

	// the pre-rotation token is spent
	replayRec := env.do(http.MethodPost, "/api/v1/auth/refresh", nil, "", loginCookie)
	assert.Equal(t, http.StatusUnauthorized, replayRec.Code)

	// logout with the newest token clears the cookie
	logoutRec := env.do(http.MethodPost, "/api/v1/auth/logout", nil, "", rotatedCookie)
	require.Equal(t, http.StatusCreated, logoutRec.Code)
	cleared := refreshCookieOf(t, logoutRec)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	// the revoked token cannot refresh anymore
	deadRec := env.do(http.MethodPost, "/api/v1/auth/refresh", nil, "", rotatedCookie)
	assert.Equal(t, http.StatusUnauthorized, deadRec.Code)
}

func TestLogout_IsIdempotentForTheCaller(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/auth/register", registerBody(), "").Code)

	loginRec := env.do(http.MethodPost, "/api/v1/auth/login", loginBody(), "")
	cookie := refreshCookieOf(t, loginRec)

	first := env.do(http.MethodPost, "/api/v1/auth/logout", nil, "", cookie)
	assert.Equal(t, http.StatusCreated, first.Code)

	second := env.do(http.MethodPost, "/api/v1/auth/logout", nil, "", cookie)
	assert.Equal(t, http.StatusCreated, second.Code)
}

func TestStaleVersionAfterPasswordChange(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/auth/register", registerBody(), "").Code)

	loginRec := env.do(http.MethodPost, "/api/v1/auth/login", loginBody(), "")
	access1 := accessTokenOf(t, loginRec)
	cookie1 := refreshCookieOf(t, loginRec)

	changeRec := env.do(http.MethodPatch, "/api/v1/users/current/password",
		map[string]string{"old_password": "password1", "new_password": "password2"},
		access1, cookie1)
	require.Equal(t, http.StatusOK, changeRec.Code)

	// the change revoked every session, so the cookie goes with them
	cleared := refreshCookieOf(t, changeRec)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	// the pre-change access token is now stale
	staleRec := env.do(http.MethodPatch, "/api/v1/users/current/email",
		map[string]string{"email": "new@x.com", "password": "password2"},
		access1, cookie1)
	assert.Equal(t, http.StatusUnauthorized, staleRec.Code)
	assert.Contains(t, staleRec.Body.String(), "token expired, please log in again.")

	// a fresh login works and the new access token is accepted
	relogin := env.do(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"username": "alice1", "password": "password2"}, "")
	require.Equal(t, http.StatusCreated, relogin.Code)
	access2 := accessTokenOf(t, relogin)
	cookie2 := refreshCookieOf(t, relogin)

	okRec := env.do(http.MethodPatch, "/api/v1/users/current/email",
		map[string]string{"email": "new@x.com", "password": "password2"},
		access2, cookie2)
	assert.Equal(t, http.StatusOK, okRec.Code)
	assert.Less(t, refreshCookieOf(t, okRec).MaxAge, 0)
}

func TestChangeUsername_ClearsRefreshCookie(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/auth/register", registerBody(), "").Code)

	loginRec := env.do(http.MethodPost, "/api/v1/auth/login", loginBody(), "")
	access := accessTokenOf(t, loginRec)
	cookie := refreshCookieOf(t, loginRec)

	rec := env.do(http.MethodPatch, "/api/v1/users/current/username",
		map[string]string{"username": "alice2", "password": "password1"},
		access, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	cleared := refreshCookieOf(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	// the cookie the client held is dead server-side too
	replay := env.do(http.MethodPost, "/api/v1/auth/refresh", nil, "", cookie)
	assert.Equal(t, http.StatusUnauthorized, replay.Code)
}

func TestChangeEmail_RequiresLiveRefreshToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/auth/register", registerBody(), "").Code)

	loginRec := env.do(http.MethodPost, "/api/v1/auth/login", loginBody(), "")
	access := accessTokenOf(t, loginRec)
	cookie := refreshCookieOf(t, loginRec)

	// revoke the session server-side; the access token alone is not enough
	logoutRec := env.do(http.MethodPost, "/api/v1/auth/logout", nil, "", cookie)
	require.Equal(t, http.StatusCreated, logoutRec.Code)

	rec := env.do(http.MethodPatch, "/api/v1/users/current/email",
		map[string]string{"email": "new@x.com", "password": "password1"},
		access, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminSessions_RoleGate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	pwHash, err := hash.HashPassword("password1")
	require.NoError(t, err)
	admin := models.User{
		Name:         "Boss",
		Username:     "boss1",
		Email:        "boss@x.com",
		PasswordHash: pwHash,
		Role:         models.RoleAdmin,
	}
	require.NoError(t, env.rp.CreateUser(ctx, &admin))
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/auth/register", registerBody(), "").Code)

	adminLogin := env.do(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"username": "boss1", "password": "password1"}, "")
	require.Equal(t, http.StatusCreated, adminLogin.Code)
	adminAccess := accessTokenOf(t, adminLogin)

	userLogin := env.do(http.MethodPost, "/api/v1/auth/login", loginBody(), "")
	require.Equal(t, http.StatusCreated, userLogin.Code)
	userAccess := accessTokenOf(t, userLogin)

	// plain users are forbidden
	rec := env.do(http.MethodGet, "/api/v1/admin/sessions?q=alice1", nil, userAccess)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// admins pass the role gate; an empty query is still a bad request
	rec = env.do(http.MethodGet, "/api/v1/admin/sessions", nil, adminAccess)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
