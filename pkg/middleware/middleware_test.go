package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func validClaims(owner string, admin bool) Claims {
	return Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func newAuthRouter(auth *Authentication) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(auth.Middleware())
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/api/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"owner": Owner(c), "admin": IsAdmin(c)})
	})
	admin := router.Group("/api/admin", auth.RequireAdmin())
	admin.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return router
}

func TestAuthentication(t *testing.T) {
	auth := NewAuthentication(AuthConfig{Secret: testSecret, PublicPaths: []string{"/health"}}, zap.NewNop().Sugar())
	router := newAuthRouter(auth)

	expired := validClaims("alice", false)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "public path", path: "/health", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "missing token", path: "/api/whoami", wantStatus: http.StatusUnauthorized},
		{name: "not a bearer", path: "/api/whoami", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", path: "/api/whoami", header: "Bearer " + signToken(t, []byte("other"), validClaims("alice", false)), wantStatus: http.StatusUnauthorized},
		{name: "expired", path: "/api/whoami", header: "Bearer " + signToken(t, testSecret, expired), wantStatus: http.StatusUnauthorized},
		{name: "no subject", path: "/api/whoami", header: "Bearer " + signToken(t, testSecret, validClaims("", false)), wantStatus: http.StatusUnauthorized},
		{name: "valid", path: "/api/whoami", header: "Bearer " + signToken(t, testSecret, validClaims("alice", false)), wantStatus: http.StatusOK, wantBody: `"owner":"alice"`},
		{name: "admin route without claim", path: "/api/admin/ping", header: "Bearer " + signToken(t, testSecret, validClaims("alice", false)), wantStatus: http.StatusForbidden},
		{name: "admin route with claim", path: "/api/admin/ping", header: "Bearer " + signToken(t, testSecret, validClaims("root", true)), wantStatus: http.StatusOK, wantBody: "pong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAuthentication_RejectsOtherAlgorithms(t *testing.T) {
	auth := NewAuthentication(AuthConfig{Secret: testSecret}, zap.NewNop().Sugar())

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, validClaims("alice", false)).SignedString(testSecret)
	require.NoError(t, err)

	_, err = auth.Authenticate("Bearer " + token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthentication_Issuer(t *testing.T) {
	auth := NewAuthentication(AuthConfig{Secret: testSecret, Issuer: "drive"}, zap.NewNop().Sugar())

	claims := validClaims("alice", false)
	_, err := auth.Authenticate("Bearer " + signToken(t, testSecret, claims))
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims.Issuer = "drive"
	got, err := auth.Authenticate("Bearer " + signToken(t, testSecret, claims))
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Subject)
}

func TestLoggingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	logging := NewLogging(DefaultLoggingConfig(), zap.New(core).Sugar())

	router := gin.New()
	router.Use(logging.Middleware())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/files/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	t.Run("request id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/files/x", nil)
		req.Header.Set(HeaderRequestID, "req-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zap.WarnLevel, entries[0].Level)
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "/api/files/:id", fields["path"])
		assert.EqualValues(t, http.StatusNotFound, fields["status"])
	})

	t.Run("request id is generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/files/x", nil))

		assert.Len(t, w.Header().Get(HeaderRequestID), 36)
		logs.TakeAll()
	})

	t.Run("skip paths are not logged", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
		assert.Zero(t, logs.Len())
	})
}

func TestRecoveryAndSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Recovery(zap.NewNop().Sugar()), SecurityHeaders())
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_error")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestSecurityHeaders_Download(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SecurityHeaders())
	router.GET("/api/files/:id/download", func(c *gin.Context) { c.String(http.StatusOK, "data") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/files/f1/download", nil))
	assert.Equal(t, "private, no-cache", w.Header().Get("Cache-Control"))
}

func TestGetClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "forwarded for", headers: map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, want: "10.0.0.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "10.0.0.3"}, want: "10.0.0.3"},
		{name: "remote addr", want: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(c))
		})
	}
}
