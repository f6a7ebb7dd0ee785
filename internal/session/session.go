package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jurisai-go/internal/model"
	"jurisai-go/internal/repository"
	"jurisai-go/pkg/log"
)

// Session 是一个用户的工作区：当前案件、消息日志和尚未发送的附件。
type Session struct {
	Username string
	Store    *Store

	mu             sync.Mutex
	conversationID string
	createdAt      time.Time
	title          string
	pending        []model.Attachment
}

func newSession(username, conversationID string) *Session {
	return &Session{
		Username:       username,
		Store:          NewStore(nil),
		conversationID: conversationID,
		createdAt:      time.Now(),
	}
}

// ConversationID 返回当前案件 ID。
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// AddPending 将读取完成的附件追加到待发送列表。
func (s *Session) AddPending(atts []model.Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, atts...)
}

// Pending 返回待发送附件的副本。
func (s *Session) Pending() []model.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Attachment(nil), s.pending...)
}

// TakePending 取出并清空待发送附件。
func (s *Session) TakePending() []model.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// ClearPending 丢弃所有待发送附件。
func (s *Session) ClearPending() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// Reset 开始一个新的咨询。
func (s *Session) Reset(conversationID string) {
	s.mu.Lock()
	s.conversationID = conversationID
	s.createdAt = time.Now()
	s.title = ""
	s.pending = nil
	s.mu.Unlock()
	s.Store.BulkReplace(nil)
}

// Load 用已保存的案件替换当前会话内容。
func (s *Session) Load(conv model.Conversation) {
	s.mu.Lock()
	s.conversationID = conv.ID
	s.createdAt = conv.CreatedAt
	s.title = conv.Title
	s.pending = nil
	s.mu.Unlock()
	s.Store.BulkReplace(conv.Messages)
}

// Snapshot 生成当前案件的快照。标题在第一次有内容时确定，此后不再变化。
func (s *Session) Snapshot() model.Conversation {
	msgs := s.Store.Get()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.title == "" && len(msgs) > 0 {
		s.title = model.DeriveTitle(msgs)
	}
	return model.Conversation{
		ID:        s.conversationID,
		Username:  s.Username,
		Title:     s.title,
		Preview:   model.DerivePreview(msgs),
		CreatedAt: s.createdAt,
		UpdatedAt: time.Now(),
		Messages:  msgs,
	}
}

// Manager 保存所有已登录用户的会话。当前案件 ID 同时写入 Redis，
// 以便服务重启后用户回到同一个案件。
type Manager struct {
	repo repository.SessionRepository

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager 创建一个新的 Manager。
func NewManager(repo repository.SessionRepository) *Manager {
	return &Manager{repo: repo, sessions: make(map[string]*Session)}
}

// Open 返回用户的会话，不存在时创建。
func (m *Manager) Open(ctx context.Context, username string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[username]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	convID, err := m.repo.GetOrCreateActiveConversation(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active conversation: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[username]; ok {
		return s, nil
	}
	s := newSession(username, convID)
	m.sessions[username] = s
	log.Infof("[Session] 会话已创建, user=%s, conversation=%s", username, convID)
	return s, nil
}

// Get 返回已存在的会话。
func (m *Manager) Get(username string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[username]
	if !ok {
		return nil, model.ErrNoSession
	}
	return s, nil
}

// Close 在登出时丢弃会话并清除当前案件。
func (m *Manager) Close(ctx context.Context, username string) error {
	m.mu.Lock()
	delete(m.sessions, username)
	m.mu.Unlock()
	return m.repo.ClearActiveConversation(ctx, username)
}

// NewConsultation 为用户分配新的案件 ID 并清空会话。
func (m *Manager) NewConsultation(ctx context.Context, username string) (*Session, error) {
	s, err := m.Get(username)
	if err != nil {
		return nil, err
	}
	if err := s.Store.BeginTurn(); err != nil {
		return nil, err
	}
	defer s.Store.EndTurn()

	if err := m.startNew(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// startNew 要求调用方持有 turn guard。
func (m *Manager) startNew(ctx context.Context, s *Session) error {
	convID := model.NewConversationID()
	if err := m.repo.SetActiveConversation(ctx, s.Username, convID); err != nil {
		return fmt.Errorf("failed to switch active conversation: %w", err)
	}
	s.Reset(convID)
	return nil
}

// Retire 删除一个案件。id 是当前案件时，remove 在 turn guard 内执行，
// 成功后会话切换到新的咨询；此时若有一轮正在进行则返回 ErrTurnInProgress，不做删除。
func (m *Manager) Retire(ctx context.Context, username, id string, remove func() error) error {
	s, err := m.Get(username)
	if err != nil {
		return remove()
	}
	if err := s.Store.BeginTurn(); err != nil {
		if s.ConversationID() != id {
			return remove()
		}
		return err
	}
	defer s.Store.EndTurn()

	if err := remove(); err != nil {
		return err
	}
	if s.ConversationID() != id {
		return nil
	}
	return m.startNew(ctx, s)
}

// Activate 将已保存的案件载入会话。
func (m *Manager) Activate(ctx context.Context, username string, conv model.Conversation) (*Session, error) {
	s, err := m.Get(username)
	if err != nil {
		return nil, err
	}
	if err := s.Store.BeginTurn(); err != nil {
		return nil, err
	}
	defer s.Store.EndTurn()

	if err := m.repo.SetActiveConversation(ctx, username, conv.ID); err != nil {
		return nil, fmt.Errorf("failed to switch active conversation: %w", err)
	}
	s.Load(conv)
	return s, nil
}
