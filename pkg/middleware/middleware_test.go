package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterheater-panel/config"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateAccessToken(secret, "panel-1", time.Minute)
	require.NoError(t, err)

	id, err := ValidateToken("Bearer "+token, secret)
	require.NoError(t, err)
	assert.Equal(t, "panel-1", id)

	_, err = ValidateToken(token, "other-secret")
	assert.EqualError(t, err, "invalid token")

	_, err = GenerateAccessToken("", "panel-1", time.Minute)
	assert.Error(t, err)
}

func TestValidateTokenRejects(t *testing.T) {
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	exp := time.Now().Add(time.Minute).Unix()

	tests := map[string]struct {
		token string
		want  string
	}{
		"empty":         {token: "Bearer ", want: "bearer token required"},
		"garbage":       {token: "not-a-jwt", want: "invalid token"},
		"refresh token": {token: sign(jwt.MapClaims{"id": "p", "type": "refresh", "exp": exp}), want: "invalid token type"},
		"missing id":    {token: sign(jwt.MapClaims{"type": "access", "exp": exp}), want: "invalid token claims"},
		"expired":       {token: sign(jwt.MapClaims{"id": "p", "type": "access", "exp": time.Now().Add(-time.Minute).Unix()}), want: "invalid token"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateToken(tt.token, secret)
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/api/elements", AuthMiddleware(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ClientIDKey))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/elements", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"authorization header required"}`, w.Body.String())

	token, err := GenerateAccessToken(secret, "panel-7", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/elements", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "panel-7", w.Body.String())
}

func TestMetricsMiddleware(t *testing.T) {
	m := config.NewMetrics(prometheus.NewRegistry())
	r := gin.New()
	r.Use(MetricsMiddleware(m))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/health", "/health", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPErrors.WithLabelValues("GET", "unmatched", "404")))
}
