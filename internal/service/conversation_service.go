// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"strings"

	"jurisai-go/internal/model"
	"jurisai-go/internal/session"
	"jurisai-go/pkg/log"
)

// ConversationView 是当前会话返回给前端的视图。
type ConversationView struct {
	ID       string                 `json:"id"`
	Title    string                 `json:"title"`
	Messages []model.MessageView    `json:"messages"`
	Pending  []model.AttachmentView `json:"pending"`
	TurnBusy bool                   `json:"turnInProgress"`
}

// ConversationService 定义了会话与案件管理的业务逻辑。
type ConversationService interface {
	Restore(ctx context.Context, sess *session.Session) error
	Current(sess *session.Session) ConversationView
	Attach(ctx context.Context, sess *session.Session, files []RawFile) (*IngestResult, error)
	ClearPending(sess *session.Session)
	EditMessage(ctx context.Context, sess *session.Session, id, text string) error
	NewConsultation(ctx context.Context, username string) (ConversationView, error)
	ListCases(ctx context.Context, username string) ([]model.CaseSummary, error)
	OpenCase(ctx context.Context, username, id string) (ConversationView, error)
	DeleteCase(ctx context.Context, username, id string) error
}

type conversationService struct {
	sessions *session.Manager
	cases    CaseService
	ingestor IngestService
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(sessions *session.Manager, cases CaseService, ingestor IngestService) ConversationService {
	return &conversationService{sessions: sessions, cases: cases, ingestor: ingestor}
}

// Restore 在登录时把当前案件 ID 对应的已保存内容载入会话。案件尚未保存过时保持为空。
func (s *conversationService) Restore(ctx context.Context, sess *session.Session) error {
	if sess.Store.Len() > 0 {
		return nil
	}
	conv, err := s.cases.Load(ctx, sess.Username, sess.ConversationID())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}
	sess.Load(*conv)
	return nil
}

// Current 返回会话当前状态。
func (s *conversationService) Current(sess *session.Session) ConversationView {
	snap := sess.Snapshot()
	view := ConversationView{
		ID:       snap.ID,
		Title:    snap.Title,
		Messages: model.MessageViews(snap.Messages),
		Pending:  []model.AttachmentView{},
		TurnBusy: sess.Store.TurnActive(),
	}
	for _, a := range sess.Pending() {
		view.Pending = append(view.Pending, a.View())
	}
	return view
}

// Attach 读取上传的文件并加入待发送列表。同一会话同时只允许一次读取或一轮对话。
func (s *conversationService) Attach(ctx context.Context, sess *session.Session, files []RawFile) (*IngestResult, error) {
	// 读取期间占用 turn guard，发送与切换案件都会被拒绝
	if err := sess.Store.BeginTurn(); err != nil {
		return nil, err
	}
	defer sess.Store.EndTurn()

	result, err := s.ingestor.Ingest(ctx, files)
	if err != nil {
		return nil, err
	}
	sess.AddPending(result.Attachments)
	return result, nil
}

// ClearPending 丢弃待发送附件。
func (s *conversationService) ClearPending(sess *session.Session) {
	sess.ClearPending()
}

// EditMessage 修改一条用户消息的文本，并保存快照。
func (s *conversationService) EditMessage(ctx context.Context, sess *session.Session, id, text string) error {
	if err := sess.Store.BeginTurn(); err != nil {
		return err
	}
	defer sess.Store.EndTurn()

	msg, ok := sess.Store.Find(id)
	if !ok || msg.Role != model.RoleUser {
		return &model.NotFoundError{Resource: "message", ID: id}
	}
	if err := sess.Store.UpdateText(id, strings.TrimSpace(text)); err != nil {
		return err
	}
	if err := s.cases.Save(ctx, sess.Snapshot()); err != nil {
		log.Error("[ConversationService] 保存案件失败", err)
	}
	return nil
}

// NewConsultation 开始一个新的咨询。
func (s *conversationService) NewConsultation(ctx context.Context, username string) (ConversationView, error) {
	sess, err := s.sessions.NewConsultation(ctx, username)
	if err != nil {
		return ConversationView{}, err
	}
	return s.Current(sess), nil
}

// ListCases 返回用户的案件摘要。
func (s *conversationService) ListCases(ctx context.Context, username string) ([]model.CaseSummary, error) {
	convs, err := s.cases.LoadAll(ctx, username)
	if err != nil {
		return nil, err
	}
	out := make([]model.CaseSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.Summary())
	}
	return out, nil
}

// OpenCase 将已保存的案件载入会话。
func (s *conversationService) OpenCase(ctx context.Context, username, id string) (ConversationView, error) {
	conv, err := s.cases.Load(ctx, username, id)
	if err != nil {
		return ConversationView{}, err
	}
	sess, err := s.sessions.Activate(ctx, username, *conv)
	if err != nil {
		return ConversationView{}, err
	}
	return s.Current(sess), nil
}

// DeleteCase 删除一个案件。删除的是当前案件时，会话切换到新的咨询；
// 当前案件正在进行一轮对话时拒绝删除。
func (s *conversationService) DeleteCase(ctx context.Context, username, id string) error {
	return s.sessions.Retire(ctx, username, id, func() error {
		return s.cases.Delete(ctx, username, id)
	})
}
