package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"jurisai-go/internal/model"
	"jurisai-go/internal/session"
	"jurisai-go/pkg/log"
)

// ObjectStore 是导出文件的对象存储。
type ObjectStore interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) error
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// ExportResult 是导出文件的下载信息。
type ExportResult struct {
	FileName  string    `json:"fileName"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ExportService 将一条消息导出为文书文件。
type ExportService interface {
	Export(ctx context.Context, sess *session.Session, messageID string) (*ExportResult, error)
}

type exportService struct {
	store  ObjectStore
	expiry time.Duration
	now    func() time.Time
}

// NewExportService 创建一个新的 ExportService 实例。
func NewExportService(store ObjectStore, expiry time.Duration) ExportService {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &exportService{store: store, expiry: expiry, now: time.Now}
}

// 按顺序匹配，第一个命中的关键词决定文书类型。
var docTypeKeywords = []struct {
	keyword string
	docType string
}{
	{"tutela", "Accion_de_Tutela"},
	{"demanda", "Demanda_Judicial"},
	{"contestación", "Contestacion_Demanda"},
	{"contestacion", "Contestacion_Demanda"},
	{"petición", "Derecho_de_Peticion"},
	{"peticion", "Derecho_de_Peticion"},
	{"contrato", "Contrato_Legal"},
	{"poder", "Poder_Especial"},
	{"recurso", "Recurso_Legal"},
	{"apelación", "Recurso_Apelacion"},
	{"reposición", "Recurso_Reposicion"},
	{"alegato", "Alegatos_Conclusion"},
	{"sentencia", "Analisis_Sentencia"},
	{"concepto", "Concepto_Juridico"},
}

const (
	defaultDocType  = "Documento_Legal"
	docTypeScanSize = 1000
)

// DetectDocType 根据文本前 1000 个字符中的关键词判断文书类型。
func DetectDocType(text string) string {
	head := []rune(strings.ToLower(text))
	if len(head) > docTypeScanSize {
		head = head[:docTypeScanSize]
	}
	lower := string(head)
	for _, kw := range docTypeKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.docType
		}
	}
	return defaultDocType
}

// ExportFileName 返回 "<类型>_<YYYY-MM-DD>"。
func ExportFileName(text string, at time.Time) string {
	return DetectDocType(text) + "_" + at.Format("2006-01-02")
}

// Export 将一条消息的文本保存为 Markdown 文件并返回临时下载链接。
func (s *exportService) Export(ctx context.Context, sess *session.Session, messageID string) (*ExportResult, error) {
	msg, ok := sess.Store.Find(messageID)
	if !ok {
		return nil, &model.NotFoundError{Resource: "message", ID: messageID}
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, fmt.Errorf("message %q has no text to export", messageID)
	}

	now := s.now()
	fileName := ExportFileName(msg.Text, now) + ".md"
	objectName := fmt.Sprintf("exports/%s/%s/%s", sess.Username, uuid.NewString(), fileName)
	if err := s.store.Put(ctx, objectName, []byte(msg.Text), "text/markdown; charset=utf-8"); err != nil {
		log.Errorf("[ExportService] 上传导出文件失败, object=%s: %v", objectName, err)
		return nil, fmt.Errorf("failed to store export: %w", err)
	}
	url, err := s.store.PresignedURL(ctx, objectName, s.expiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign export url: %w", err)
	}
	log.Infof("[ExportService] 导出完成, user=%s, file=%s", sess.Username, fileName)
	return &ExportResult{FileName: fileName, URL: url, ExpiresAt: now.Add(s.expiry)}, nil
}
