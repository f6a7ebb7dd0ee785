package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"jurisai-go/internal/service"
	"jurisai-go/pkg/log"
)

// CaseHandler 处理已保存案件的列表、检索、打开与删除。
type CaseHandler struct {
	conversations service.ConversationService
	search        service.SearchService
}

// NewCaseHandler 创建一个新的 CaseHandler。
func NewCaseHandler(conversations service.ConversationService, search service.SearchService) *CaseHandler {
	return &CaseHandler{conversations: conversations, search: search}
}

// List 返回当前用户的案件，最近更新的在前。
func (h *CaseHandler) List(c *gin.Context) {
	cases, err := h.conversations.ListCases(c.Request.Context(), currentUsername(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, cases)
}

// Search 在当前用户的案件中全文检索。
func (h *CaseHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		fail(c, http.StatusBadRequest, "缺少查询参数 q")
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))

	hits, err := h.search.SearchCases(c.Request.Context(), currentUsername(c), query, size)
	if err != nil {
		log.Error("Search: 案件检索失败", err)
		fail(c, http.StatusInternalServerError, "检索失败")
		return
	}
	ok(c, hits)
}

// Open 将一个案件载入当前会话。
func (h *CaseHandler) Open(c *gin.Context) {
	view, err := h.conversations.OpenCase(c.Request.Context(), currentUsername(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, view)
}

// Delete 删除一个案件。
func (h *CaseHandler) Delete(c *gin.Context) {
	if err := h.conversations.DeleteCase(c.Request.Context(), currentUsername(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "案件已删除"})
}
