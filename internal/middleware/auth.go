// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"jurisai-go/internal/model"
	"jurisai-go/internal/repository"
	"jurisai-go/internal/service"
	"jurisai-go/internal/session"
	"jurisai-go/pkg/log"
	"jurisai-go/pkg/token"
)

// 存入 gin 上下文的键。
const (
	ContextClaims   = "claims"
	ContextUsername = "username"
	ContextSession  = "session"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 token，检查黑名单，并将用户名与会话存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, sessionRepo repository.SessionRepository, sessions *session.Manager, conversations service.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头"})
			return
		}

		// Token 通常以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, sess, err := Authenticate(c, tokenString, jwtManager, sessionRepo, sessions, conversations)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token"})
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextSession, sess)
		c.Next()
	}
}

// Authenticate 验证 access token 并返回对应的会话。
// 服务重启后会话不在内存中，此时重新打开并从数据库恢复当前案件。
func Authenticate(c *gin.Context, tokenString string, jwtManager *token.JWTManager, sessionRepo repository.SessionRepository, sessions *session.Manager, conversations service.ConversationService) (*token.CustomClaims, *session.Session, error) {
	ctx := c.Request.Context()
	claims, err := jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, nil, err
	}
	if claims.Type != token.AccessToken {
		return nil, nil, errors.New("not an access token")
	}
	blacklisted, err := sessionRepo.IsTokenBlacklisted(ctx, tokenString)
	if err != nil {
		return nil, nil, err
	}
	if blacklisted {
		return nil, nil, errors.New("token revoked")
	}

	sess, err := sessions.Get(claims.Username)
	if errors.Is(err, model.ErrNoSession) {
		if sess, err = sessions.Open(ctx, claims.Username); err != nil {
			return nil, nil, err
		}
		if err := conversations.Restore(ctx, sess); err != nil {
			log.Warnf("[Auth] 恢复当前案件失败, user=%s: %v", claims.Username, err)
		}
	} else if err != nil {
		return nil, nil, err
	}
	return claims, sess, nil
}
