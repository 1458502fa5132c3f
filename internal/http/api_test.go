package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"college-auth/internal/domain"
	"college-auth/internal/password"
	"college-auth/internal/repository"
	"college-auth/internal/repository/sqlite"
	"college-auth/internal/service"
	"college-auth/internal/token"
)

type testServer struct {
	router *gin.Engine
	users  repository.UserRepository
	tokens *token.Issuer
	clock  *time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	users := sqlite.NewUserRepository(db)
	require.NoError(t, users.Init(context.Background()))

	now := time.Now()
	ts := &testServer{users: users, clock: &now}

	tokens, err := token.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour, "college-auth",
		token.WithClock(func() time.Time { return *ts.clock }))
	require.NoError(t, err)
	ts.tokens = tokens

	hasher := password.NewBcryptHasher(bcrypt.MinCost)
	registration := service.NewRegistrationService(users, hasher, service.RegistrationPolicy{
		DefaultRole:       "STUDENT",
		SignupRoles:       []string{"STUDENT", "FACULTY", "DEPARTMENT"},
		MinPasswordLength: 6,
	}, logger)
	auth := service.NewAuthService(users, hasher, logger)

	router := gin.New()
	NewHandler(registration, auth, tokens, []string{"*"}, logger).RegisterRoutes(router)
	ts.router = router
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func bearer(tok string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + tok}}
}

func TestSignupLoginScenario(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/api/auth/signup", gin.H{"username": "alice", "password": "Secr3t!"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, signupMessage, body["message"])

	rec, body = ts.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "Secr3t!"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, body["token"])
	require.Equal(t, "ROLE_STUDENT", body["role"])

	identity, err := ts.tokens.Validate(body["token"].(string))
	require.NoError(t, err)
	require.Equal(t, "alice", identity.Username)

	wrongRec, wrongBody := ts.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, wrongRec.Code)
	require.NotContains(t, wrongBody, "token")
	require.NotContains(t, wrongBody, "role")

	unknownRec, unknownBody := ts.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "bob", "password": "x"}, nil)
	require.Equal(t, http.StatusUnauthorized, unknownRec.Code)
	require.Equal(t, wrongBody, unknownBody)
	require.Equal(t, wrongRec.Body.String(), unknownRec.Body.String())
}

func TestSignup_Duplicate(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/api/auth/signup", gin.H{"username": "alice", "password": "Secr3t!"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := ts.do(t, http.MethodPost, "/api/auth/signup", gin.H{"username": "alice", "password": "Other1!", "role": "FACULTY"}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "Username already exists", body["error"])

	stored, err := ts.users.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "STUDENT", stored.Role)
}

func TestSignup_ValidationFailures(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body any
	}{
		{name: "missing username", body: gin.H{"password": "Secr3t!"}},
		{name: "missing password", body: gin.H{"username": "carol"}},
		{name: "admin role", body: gin.H{"username": "carol", "password": "Secr3t!", "role": "ADMIN"}},
		{name: "bad email", body: gin.H{"username": "carol", "password": "Secr3t!", "email": "nope"}},
		{name: "malformed json", body: `{"username":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := ts.do(t, http.MethodPost, "/api/auth/signup", tc.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotEmpty(t, body["error"])
		})
	}

	_, err := ts.users.GetByUsername(context.Background(), "carol")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSignup_ProfileAndRole(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"username": "fran",
		"password": "Secr3t!",
		"name":     "Fran",
		"email":    "fran@college.edu",
		"phone":    "555-0101",
		"role":     "FACULTY",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := ts.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "fran", "password": "Secr3t!"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ROLE_FACULTY", body["role"])

	stored, err := ts.users.GetByUsername(context.Background(), "fran")
	require.NoError(t, err)
	require.Equal(t, "fran@college.edu", stored.Email)
	require.Equal(t, "555-0101", stored.Phone)
}

func TestLogin_MissingFieldsIsUnauthorized(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "alice"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotContains(t, body, "token")

	rec, _ = ts.do(t, http.MethodPost, "/api/auth/login", "not json", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/api/auth/signup", gin.H{"username": "alice", "password": "Secr3t!"}, nil)
	_, login := ts.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "Secr3t!"}, nil)
	tok := login["token"].(string)

	rec, body := ts.do(t, http.MethodGet, "/api/auth/me", nil, bearer(tok))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", body["username"])
	require.Equal(t, "ROLE_STUDENT", body["role"])

	rec, _ = ts.do(t, http.MethodGet, "/api/auth/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec, _ = ts.do(t, http.MethodGet, "/api/auth/me", nil, bearer(tok+"x"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/auth/me", nil, http.Header{"Authorization": []string{"Basic " + tok}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	*ts.clock = ts.clock.Add(2 * time.Hour)
	rec, _ = ts.do(t, http.MethodGet, "/api/auth/me", nil, bearer(tok))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminPing_RequiresAdminRole(t *testing.T) {
	ts := newTestServer(t)

	student, err := ts.tokens.Generate(domain.Identity{Username: "alice", Roles: []string{"ROLE_STUDENT"}})
	require.NoError(t, err)
	rec, _ := ts.do(t, http.MethodGet, "/api/auth/admin/ping", nil, bearer(student.Value))
	require.Equal(t, http.StatusForbidden, rec.Code)

	admin, err := ts.tokens.Generate(domain.Identity{Username: "admin", Roles: []string{"ROLE_ADMIN"}})
	require.NoError(t, err)
	rec, body := ts.do(t, http.MethodGet, "/api/auth/admin/ping", nil, bearer(admin.Value))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "admin", body["username"])
}

func TestHealthAndCORS(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["ok"])
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = ts.do(t, http.MethodOptions, "/api/auth/login", nil, http.Header{"Origin": []string{"http://localhost:4200"}})
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCORS_AllowList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(corsMiddleware([]string{"http://localhost:4200"}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type failingUsers struct {
	repository.UserRepository
}

func (failingUsers) GetByUsername(context.Context, string) (*domain.User, error) {
	return nil, errors.New("database is locked")
}

func TestLogin_StoreFailureIs5xx(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tokens, err := token.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour, "college-auth")
	require.NoError(t, err)
	hasher := password.NewBcryptHasher(bcrypt.MinCost)
	auth := service.NewAuthService(failingUsers{}, hasher, logger)

	router := gin.New()
	NewHandler(nil, auth, tokens, nil, logger).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"username":"alice","password":"Secr3t!"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "token")
	require.NotContains(t, rec.Body.String(), "database is locked")
}
