// Package session 管理每个已登录用户的会话状态：有序消息日志、待发送附件与当前案件 ID。
package session

import (
	"sync"

	"jurisai-go/internal/model"
)

// Store 是一个会话内按到达顺序排列的消息日志。
// 所有读写都在锁内完成，Get 返回的是副本，观察者不会看到部分替换的结果。
type Store struct {
	mu         sync.RWMutex
	messages   []model.Message
	turnActive bool
}

// NewStore 创建一个 Store，可选地以已有消息初始化。
func NewStore(initial []model.Message) *Store {
	return &Store{messages: model.CloneMessages(initial)}
}

// Append 在末尾追加一条消息。
func (s *Store) Append(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg.Clone())
}

// UpdateOption 修改 UpdateText 的行为。
type UpdateOption func(*updateOptions)

type updateOptions struct {
	attachments    []model.Attachment
	setAttachments bool
}

// WithAttachments 在同一次更新中原子地替换消息的附件。
func WithAttachments(atts []model.Attachment) UpdateOption {
	return func(o *updateOptions) {
		o.attachments = append([]model.Attachment(nil), atts...)
		o.setAttachments = true
	}
}

// UpdateText 只修改匹配 id 的消息的文本（以及可选的附件）。
// id 不存在时返回 NotFoundError，日志保持不变。
func (s *Store) UpdateText(id, text string, opts ...UpdateOption) error {
	var o updateOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID != id {
			continue
		}
		s.messages[i].Text = text
		if o.setAttachments {
			s.messages[i].Attachments = o.attachments
		}
		return nil
	}
	return &model.NotFoundError{Resource: "message", ID: id}
}

// BulkReplace 原子地替换整个消息序列。
func (s *Store) BulkReplace(msgs []model.Message) {
	replacement := model.CloneMessages(msgs)
	s.mu.Lock()
	s.messages = replacement
	s.mu.Unlock()
}

// Get 返回当前消息序列的副本。
func (s *Store) Get() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneMessages(s.messages)
}

// Find 返回指定 id 的消息副本。
func (s *Store) Find(id string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m.Clone(), true
		}
	}
	return model.Message{}, false
}

// Len 返回消息数量。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// BeginTurn 获取单写者标志。已有一轮在进行中时返回 ErrTurnInProgress。
func (s *Store) BeginTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnActive {
		return model.ErrTurnInProgress
	}
	s.turnActive = true
	return nil
}

// EndTurn 释放单写者标志。
func (s *Store) EndTurn() {
	s.mu.Lock()
	s.turnActive = false
	s.mu.Unlock()
}

// TurnActive 报告是否有一轮对话正在进行。
func (s *Store) TurnActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnActive
}
