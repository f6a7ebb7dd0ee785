package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"jurisai-go/internal/model"
	"jurisai-go/internal/repository"
	"jurisai-go/pkg/log"
	"jurisai-go/pkg/tasks"
)

// CaseIndexPublisher 在案件保存或删除后通知索引器。
type CaseIndexPublisher interface {
	Publish(ctx context.Context, task tasks.CaseIndexTask) error
}

// CaseService 是案件的持久化网关。所有存储失败都以 PersistenceError 返回。
type CaseService interface {
	Save(ctx context.Context, conv model.Conversation) error
	LoadAll(ctx context.Context, username string) ([]model.Conversation, error)
	Load(ctx context.Context, username, id string) (*model.Conversation, error)
	Delete(ctx context.Context, username, id string) error
	LoadUser(ctx context.Context, username string) (*model.User, error)
	SaveUser(ctx context.Context, user *model.User) error
}

type caseService struct {
	caseRepo  repository.CaseRepository
	userRepo  repository.UserRepository
	publisher CaseIndexPublisher
}

// NewCaseService 创建一个新的 CaseService 实例。publisher 可以为 nil。
func NewCaseService(caseRepo repository.CaseRepository, userRepo repository.UserRepository, publisher CaseIndexPublisher) CaseService {
	return &caseService{caseRepo: caseRepo, userRepo: userRepo, publisher: publisher}
}

// Save 以案件 ID 为键写入快照。空案件不保存。
func (s *caseService) Save(ctx context.Context, conv model.Conversation) error {
	if len(conv.Messages) == 0 {
		return nil
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = time.Now()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}
	record := model.NewCaseRecord(conv)
	if err := s.caseRepo.Upsert(ctx, &record); err != nil {
		return &model.PersistenceError{Op: "save case", Err: err}
	}
	s.publish(ctx, tasks.CaseIndexTask{CaseID: conv.ID, Username: conv.Username, Op: tasks.CaseIndexUpsert, UpdatedAt: conv.UpdatedAt})
	return nil
}

// LoadAll 返回用户的全部案件，最近更新的在前。
func (s *caseService) LoadAll(ctx context.Context, username string) ([]model.Conversation, error) {
	records, err := s.caseRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, &model.PersistenceError{Op: "load cases", Err: err}
	}
	out := make([]model.Conversation, 0, len(records))
	for _, r := range records {
		out = append(out, r.ToConversation())
	}
	return out, nil
}

// Load 读取用户名下的一个案件。
func (s *caseService) Load(ctx context.Context, username, id string) (*model.Conversation, error) {
	record, err := s.caseRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &model.NotFoundError{Resource: "case", ID: id}
		}
		return nil, &model.PersistenceError{Op: "load case", Err: err}
	}
	if record.Username != username {
		return nil, &model.NotFoundError{Resource: "case", ID: id}
	}
	conv := record.ToConversation()
	return &conv, nil
}

// Delete 删除用户名下的一个案件。
func (s *caseService) Delete(ctx context.Context, username, id string) error {
	deleted, err := s.caseRepo.Delete(ctx, username, id)
	if err != nil {
		return &model.PersistenceError{Op: "delete case", Err: err}
	}
	if !deleted {
		return &model.NotFoundError{Resource: "case", ID: id}
	}
	s.publish(ctx, tasks.CaseIndexTask{CaseID: id, Username: username, Op: tasks.CaseIndexDelete, UpdatedAt: time.Now()})
	return nil
}

// LoadUser 读取用户记录。
func (s *caseService) LoadUser(ctx context.Context, username string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &model.NotFoundError{Resource: "user", ID: username}
		}
		return nil, &model.PersistenceError{Op: "load user", Err: err}
	}
	return user, nil
}

// SaveUser 写入用户记录。
func (s *caseService) SaveUser(ctx context.Context, user *model.User) error {
	if err := s.userRepo.Save(ctx, user); err != nil {
		return &model.PersistenceError{Op: "save user", Err: err}
	}
	return nil
}

// publish 只记录失败，索引是尽力而为的。
func (s *caseService) publish(ctx context.Context, task tasks.CaseIndexTask) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, task); err != nil {
		log.Warnf("[CaseService] 发送索引任务失败, case=%s, op=%s: %v", task.CaseID, task.Op, err)
	}
}
