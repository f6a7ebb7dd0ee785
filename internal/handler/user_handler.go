package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"jurisai-go/internal/service"
	"jurisai-go/pkg/log"
)

// UserHandler 负责处理所有与用户相关的 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// LoginRequest 定义了用户登录 API 的请求体结构。只需要用户名。
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
}

// Login 处理用户登录请求。
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		fail(c, http.StatusBadRequest, "无效的请求负载：用户名不能为空")
		return
	}

	result, err := h.userService.Login(c.Request.Context(), req.Username)
	if err != nil {
		log.Warnf("Login: failed for '%s', error: %v", req.Username, err)
		writeError(c, err)
		return
	}
	ok(c, result)
}

// GetProfile 获取当前登录用户的信息。
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.userService.GetProfile(c.Request.Context(), currentUsername(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, user)
}

// Logout 处理用户登出逻辑。
func (h *UserHandler) Logout(c *gin.Context) {
	tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if err := h.userService.Logout(c.Request.Context(), tokenString); err != nil {
		log.Error("Logout: Failed to logout", err)
		fail(c, http.StatusInternalServerError, "登出失败")
		return
	}
	log.Infof("User '%s' logged out successfully", currentUsername(c))
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "登出成功"})
}

// RefreshTokenRequest 定义了刷新 token API 的请求体结构。
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshToken 处理刷新 token 的请求。
func (h *UserHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载：refreshToken 不能为空")
		return
	}
	access, refresh, err := h.userService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		log.Warnf("RefreshToken: Failed to refresh token, error: %v", err)
		fail(c, http.StatusUnauthorized, "无效的 refresh token")
		return
	}
	ok(c, gin.H{"token": access, "refreshToken": refresh})
}
