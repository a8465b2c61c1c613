package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"saulto/internal/tenant"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTenantVerifier 按预设结果校验租户
type stubTenantVerifier struct {
	err error
}

func (s *stubTenantVerifier) VerifyActive(context.Context, int64) error {
	return s.err
}

func newAuthTestRouter(svc *JWTService, tenants TenantVerifier) (*gin.Engine, *int64) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuthMiddleware(svc, tenants))

	var seenTenant int64
	router.GET("/ping", func(c *gin.Context) {
		seenTenant = GetTenantID(c)
		c.Status(http.StatusOK)
	})
	return router, &seenTenant
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	svc := NewJWTService("test-secret", "saulto", nil)
	token, err := svc.GenerateToken("user-1", 42)
	require.NoError(t, err)

	router, seenTenant := newAuthTestRouter(svc, &stubTenantVerifier{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(42), *seenTenant)
}

func TestAuthMiddleware_MissingOrMalformedHeader(t *testing.T) {
	svc := NewJWTService("test-secret", "saulto", nil)
	router, _ := newAuthTestRouter(svc, &stubTenantVerifier{})

	// 无令牌
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 非 Bearer 格式
	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Basic abc")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_InactiveTenantRejected(t *testing.T) {
	svc := NewJWTService("test-secret", "saulto", nil)
	token, err := svc.GenerateToken("user-1", 42)
	require.NoError(t, err)

	// 有效令牌 + 已停用租户：签名校验过不等于放行
	router, _ := newAuthTestRouter(svc, &stubTenantVerifier{err: tenant.ErrDisabled})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExtractTokenFromBearer(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromBearer("Bearer abc"))
	assert.Equal(t, "abc", ExtractTokenFromBearer("bearer abc"))
	assert.Equal(t, "", ExtractTokenFromBearer("abc"))
	assert.Equal(t, "", ExtractTokenFromBearer(""))
}
