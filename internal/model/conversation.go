package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Role 是消息作者的角色。
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Source 是模型回答引用的网络来源。
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Message 代表对话中的一条消息。
type Message struct {
	ID                 string       `json:"id"`
	Role               Role         `json:"role"`
	Text               string       `json:"text"`
	Attachments        []Attachment `json:"attachments,omitempty"`
	CreatedAt          time.Time    `json:"timestamp"`
	ReasoningRequested bool         `json:"isThinking,omitempty"`
	Sources            []Source     `json:"sources,omitempty"`
}

// NewMessageID 生成一个新的消息 ID。
func NewMessageID() string {
	return uuid.NewString()
}

// Clone 复制消息及其切片，调用方可以安全修改副本。
func (m Message) Clone() Message {
	if m.Attachments != nil {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Sources != nil {
		m.Sources = append([]Source(nil), m.Sources...)
	}
	return m
}

// CloneMessages 深拷贝一组消息。
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// MessageView 是返回给前端的消息视图，附件只包含元数据。
type MessageView struct {
	ID                 string           `json:"id"`
	Role               Role             `json:"role"`
	Text               string           `json:"text"`
	Attachments        []AttachmentView `json:"attachments,omitempty"`
	CreatedAt          time.Time        `json:"timestamp"`
	ReasoningRequested bool             `json:"isThinking,omitempty"`
	Sources            []Source         `json:"sources,omitempty"`
}

// View 返回消息视图。
func (m Message) View() MessageView {
	v := MessageView{
		ID:                 m.ID,
		Role:               m.Role,
		Text:               m.Text,
		CreatedAt:          m.CreatedAt,
		ReasoningRequested: m.ReasoningRequested,
		Sources:            m.Sources,
	}
	for _, a := range m.Attachments {
		v.Attachments = append(v.Attachments, a.View())
	}
	return v
}

// MessageViews 返回一组消息的视图。
func MessageViews(msgs []Message) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.View())
	}
	return out
}

const (
	titleMaxRunes   = 40
	previewMaxRunes = 100
	defaultTitle    = "Nueva consulta"
)

// Conversation 代表一个案件（一次完整的咨询）。
type Conversation struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

// NewConversationID 生成一个新的案件 ID。
func NewConversationID() string {
	return uuid.NewString()
}

// DeriveTitle 从第一条用户消息派生标题。
func DeriveTitle(msgs []Message) string {
	for _, m := range msgs {
		if m.Role != RoleUser {
			continue
		}
		if t := strings.TrimSpace(m.Text); t != "" {
			return truncateRunes(t, titleMaxRunes)
		}
		if len(m.Attachments) > 0 {
			return truncateRunes(m.Attachments[0].Name, titleMaxRunes)
		}
	}
	return defaultTitle
}

// DerivePreview 取最后一条消息的文本作为预览。
func DerivePreview(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return truncateRunes(strings.TrimSpace(msgs[len(msgs)-1].Text), previewMaxRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// CaseSummary 是案件列表使用的摘要。
type CaseSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	Date         LocalTime `json:"date"`
	MessageCount int       `json:"messageCount"`
}

// Summary 返回案件摘要。
func (c Conversation) Summary() CaseSummary {
	return CaseSummary{
		ID:           c.ID,
		Title:        c.Title,
		Preview:      c.Preview,
		Date:         LocalTime(c.UpdatedAt),
		MessageCount: len(c.Messages),
	}
}

// CaseRecord 对应数据库中的 'cases' 表。消息以 JSON 列整体存储。
type CaseRecord struct {
	ID        string                      `gorm:"type:varchar(64);primaryKey"`
	Username  string                      `gorm:"type:varchar(100);index;not null"`
	Title     string                      `gorm:"type:varchar(255)"`
	Preview   string                      `gorm:"type:varchar(255)"`
	Messages  datatypes.JSONSlice[Message] `gorm:"type:json"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (CaseRecord) TableName() string {
	return "cases"
}

// ToConversation 将数据库记录转换为领域对象。
func (r CaseRecord) ToConversation() Conversation {
	return Conversation{
		ID:        r.ID,
		Username:  r.Username,
		Title:     r.Title,
		Preview:   r.Preview,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Messages:  []Message(r.Messages),
	}
}

// NewCaseRecord 将领域对象转换为数据库记录。
func NewCaseRecord(c Conversation) CaseRecord {
	return CaseRecord{
		ID:        c.ID,
		Username:  c.Username,
		Title:     c.Title,
		Preview:   c.Preview,
		Messages:  datatypes.JSONSlice[Message](c.Messages),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
