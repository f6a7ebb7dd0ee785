// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"jurisai-go/internal/middleware"
	"jurisai-go/internal/model"
	"jurisai-go/internal/service"
	"jurisai-go/internal/session"
	"jurisai-go/pkg/log"
)

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// writeError 将领域错误映射为 HTTP 状态码。
func writeError(c *gin.Context, err error) {
	var persistErr *model.PersistenceError
	switch {
	case errors.Is(err, model.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrTurnInProgress):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrEmptyTurn), errors.Is(err, service.ErrInvalidUsername):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNoSession):
		fail(c, http.StatusUnauthorized, err.Error())
	case errors.As(err, &persistErr):
		log.Error("持久化失败", err)
		fail(c, http.StatusServiceUnavailable, "存储暂时不可用")
	default:
		log.Error("请求处理失败", err)
		fail(c, http.StatusInternalServerError, "服务器内部错误")
	}
}

// currentSession 返回 AuthMiddleware 注入的会话。
func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(middleware.ContextSession).(*session.Session)
}

func currentUsername(c *gin.Context) string {
	return c.GetString(middleware.ContextUsername)
}
