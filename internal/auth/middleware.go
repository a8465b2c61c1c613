package auth

import (
	"context"
	"net/http"
	"strings"

	"saulto/internal/logger"

	"github.com/gin-gonic/gin"
)

// UserContextKey 用户上下文键
const UserContextKey = "user"

// UserContext 请求级用户信息
type UserContext struct {
	UserID   string
	TenantID int64
}

// TenantVerifier 校验令牌声明的租户存在且处于活跃状态
type TenantVerifier interface {
	VerifyActive(ctx context.Context, tenantID int64) error
}

// AuthMiddleware JWT 认证中间件
// 签名校验通过后再核对租户状态，最后把用户和租户信息放进请求上下文
func AuthMiddleware(jwtService *JWTService, tenants TenantVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "缺少认证令牌",
			})
			c.Abort()
			return
		}

		token := ExtractTokenFromBearer(authHeader)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "无效的令牌格式",
			})
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "令牌验证失败: " + err.Error(),
			})
			c.Abort()
			return
		}

		// 令牌本身有效不够：租户被停用后存量令牌也要失效
		if tenants != nil {
			if err := tenants.VerifyActive(c.Request.Context(), claims.TenantID); err != nil {
				c.JSON(http.StatusForbidden, gin.H{
					"error": "租户不可用",
				})
				c.Abort()
				return
			}
		}

		c.Set(UserContextKey, &UserContext{
			UserID:   claims.UserID,
			TenantID: claims.TenantID,
		})
		// 租户ID 顺带写进日志上下文
		c.Request = c.Request.WithContext(
			logger.WithTenantID(c.Request.Context(), claims.TenantID))

		c.Next()
	}
}

// ExtractTokenFromBearer 从 Bearer 头提取纯令牌
func ExtractTokenFromBearer(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetUserContext 从请求上下文取用户信息
func GetUserContext(c *gin.Context) *UserContext {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return nil
	}
	user, ok := value.(*UserContext)
	if !ok {
		return nil
	}
	return user
}

// GetTenantID 从请求上下文取租户ID，未认证时返回 0
func GetTenantID(c *gin.Context) int64 {
	user := GetUserContext(c)
	if user == nil {
		return 0
	}
	return user.TenantID
}
