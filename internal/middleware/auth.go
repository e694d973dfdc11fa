package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"assetpipe/internal/config"
	"assetpipe/internal/server/auth"
)

// JWTAuth Gin 中间件：验证 Bearer 令牌，将用户信息注入到 Context
func JWTAuth(cfg config.AuthSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "缺少 Authorization 头"})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization 头格式错误"})
			return
		}
		authenticate(c, strings.TrimSpace(parts[1]), cfg)
	}
}

// JWTAuthFromHeaderOrQuery 浏览器 WebSocket 无法自定义请求头，允许从 ?token= 读取
func JWTAuthFromHeaderOrQuery(cfg config.AuthSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if h := c.GetHeader("Authorization"); h != "" {
			parts := strings.SplitN(h, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				token = strings.TrimSpace(parts[1])
			}
		}
		if token == "" {
			token = strings.TrimSpace(c.Query("token"))
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "缺少访问令牌"})
			return
		}
		authenticate(c, token, cfg)
	}
}

func authenticate(c *gin.Context, tokenStr string, cfg config.AuthSettings) {
	claims, err := auth.ParseAndValidate(tokenStr, cfg.JWTSecret, cfg.Issuer, cfg.Leeway)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "访问令牌已过期"})
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "访问令牌无效"})
		return
	}
	// 注入用户信息到上下文
	c.Set("user_id", claims.UserID)
	c.Set("username", claims.Username)
	c.Set("role", claims.Role)
	c.Next()
}
