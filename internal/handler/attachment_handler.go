package handler

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"jurisai-go/internal/model"
	"jurisai-go/internal/service"
	"jurisai-go/pkg/log"
)

// AttachmentHandler 处理待发送附件的上传、查看与清空。
type AttachmentHandler struct {
	conversations service.ConversationService
}

// NewAttachmentHandler 创建一个新的 AttachmentHandler。
func NewAttachmentHandler(conversations service.ConversationService) *AttachmentHandler {
	return &AttachmentHandler{conversations: conversations}
}

type ingestFailure struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

// Upload 读取 multipart 表单中的 "files"，加入待发送列表。
func (h *AttachmentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, "无效的 multipart 表单")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		fail(c, http.StatusBadRequest, "未包含任何文件")
		return
	}

	files := make([]service.RawFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, rawFileFromHeader(fh))
	}

	sess := currentSession(c)
	result, err := h.conversations.Attach(c.Request.Context(), sess, files)
	if err != nil {
		writeError(c, err)
		return
	}

	failures := make([]ingestFailure, 0, len(result.Failures))
	for _, f := range result.Failures {
		failures = append(failures, ingestFailure{FileName: f.FileName, Error: f.Err.Error()})
	}
	log.Infof("Upload: user=%s, accepted=%d, failed=%d", sess.Username, len(result.Attachments), len(failures))
	ok(c, gin.H{
		"accepted": views(result.Attachments),
		"failed":   failures,
		"pending":  views(sess.Pending()),
	})
}

// List 返回待发送附件。
func (h *AttachmentHandler) List(c *gin.Context) {
	ok(c, views(currentSession(c).Pending()))
}

// Clear 清空待发送附件。
func (h *AttachmentHandler) Clear(c *gin.Context) {
	h.conversations.ClearPending(currentSession(c))
	ok(c, []model.AttachmentView{})
}

func rawFileFromHeader(fh *multipart.FileHeader) service.RawFile {
	return service.RawFile{
		Name:     fh.Filename,
		MIMEType: fh.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func views(atts []model.Attachment) []model.AttachmentView {
	out := make([]model.AttachmentView, 0, len(atts))
	for _, a := range atts {
		out = append(out, a.View())
	}
	return out
}
