package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"jurisai-go/internal/service"
)

// ConversationHandler 处理当前会话相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
	export  service.ExportService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService, export service.ExportService) *ConversationHandler {
	return &ConversationHandler{service: service, export: export}
}

// GetConversation 返回当前会话的消息与待发送附件。
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	ok(c, h.service.Current(currentSession(c)))
}

// NewConsultation 开始一个新的咨询。
func (h *ConversationHandler) NewConsultation(c *gin.Context) {
	view, err := h.service.NewConsultation(c.Request.Context(), currentUsername(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, view)
}

// EditMessageRequest 是修改消息文本的请求体。
type EditMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// EditMessage 修改一条用户消息的文本。
func (h *ConversationHandler) EditMessage(c *gin.Context) {
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载：text 不能为空")
		return
	}
	sess := currentSession(c)
	if err := h.service.EditMessage(c.Request.Context(), sess, c.Param("id"), req.Text); err != nil {
		writeError(c, err)
		return
	}
	ok(c, h.service.Current(sess))
}

// ExportMessage 将一条消息导出为文书并返回下载链接。
func (h *ConversationHandler) ExportMessage(c *gin.Context) {
	result, err := h.export.Export(c.Request.Context(), currentSession(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, result)
}
