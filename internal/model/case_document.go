package model

import (
	"strings"
	"time"
)

// CaseDocument 定义了存储在 Elasticsearch 中的案件文档结构。
type CaseDocument struct {
	CaseID          string    `json:"case_id"`
	Username        string    `json:"username"`
	Title           string    `json:"title"`
	Preview         string    `json:"preview"`
	Content         string    `json:"content"`
	AttachmentNames []string  `json:"attachment_names"`
	MessageCount    int       `json:"message_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewCaseDocument 将案件展平为可检索的文档：所有消息文本与附件文件名。
func NewCaseDocument(c Conversation) CaseDocument {
	var content strings.Builder
	var names []string
	for _, m := range c.Messages {
		if m.Text != "" {
			if content.Len() > 0 {
				content.WriteString("\n\n")
			}
			content.WriteString(m.Text)
		}
		for _, a := range m.Attachments {
			names = append(names, a.Name)
		}
	}
	return CaseDocument{
		CaseID:          c.ID,
		Username:        c.Username,
		Title:           c.Title,
		Preview:         c.Preview,
		Content:         content.String(),
		AttachmentNames: names,
		MessageCount:    len(c.Messages),
		UpdatedAt:       c.UpdatedAt,
	}
}

// CaseHit 是案件搜索的一条结果。
type CaseHit struct {
	CaseID    string    `json:"id"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updatedAt"`
	Score     float64   `json:"score"`
	Highlight []string  `json:"highlight,omitempty"`
}
