package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"jurisai-go/internal/middleware"
	"jurisai-go/internal/model"
	"jurisai-go/internal/repository"
	"jurisai-go/internal/service"
	"jurisai-go/internal/session"
	"jurisai-go/pkg/log"
	"jurisai-go/pkg/token"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 处理一轮对话的 HTTP 与 WebSocket 入口。
type ChatHandler struct {
	chatService   service.ChatService
	conversations service.ConversationService
	jwtManager    *token.JWTManager
	sessionRepo   repository.SessionRepository
	sessions      *session.Manager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, conversations service.ConversationService, jwtManager *token.JWTManager, sessionRepo repository.SessionRepository, sessions *session.Manager) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		conversations: conversations,
		jwtManager:    jwtManager,
		sessionRepo:   sessionRepo,
		sessions:      sessions,
	}
}

// Send 以普通 HTTP 请求执行一轮对话。
func (h *ChatHandler) Send(c *gin.Context) {
	var req service.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	result, err := h.chatService.Send(c.Request.Context(), currentSession(c), req, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, result)
}

// Handle 处理一个传入的 WebSocket 连接。每条文本消息是一个 SendRequest JSON。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, sess, err := middleware.Authenticate(c, c.Param("token"), h.jwtManager, h.sessionRepo, h.sessions, h.conversations)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", claims.Username)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var req service.SendRequest
		if err := json.Unmarshal(message, &req); err != nil {
			// 纯文本消息按默认选项发送
			req = service.SendRequest{Text: string(message)}
		}

		if _, err := h.chatService.Send(c.Request.Context(), sess, req, conn); err != nil {
			log.Warnf("处理对话失败, user=%s: %v", claims.Username, err)
			writeWSError(conn, err)
		}
	}
}

func writeWSError(conn *websocket.Conn, err error) {
	code := "internal"
	switch {
	case errors.Is(err, model.ErrTurnInProgress):
		code = "turn_in_progress"
	case errors.Is(err, model.ErrEmptyTurn):
		code = "empty_turn"
	}
	b, _ := json.Marshal(map[string]interface{}{
		"type":      "error",
		"code":      code,
		"message":   err.Error(),
		"timestamp": time.Now().UnixMilli(),
	})
	_ = conn.WriteMessage(websocket.TextMessage, b)
}
