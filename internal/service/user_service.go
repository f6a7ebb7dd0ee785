// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"jurisai-go/internal/model"
	"jurisai-go/internal/repository"
	"jurisai-go/internal/session"
	"jurisai-go/pkg/log"
	"jurisai-go/pkg/token"
)

// ErrInvalidUsername 表示用户名为空或包含非法字符。
var ErrInvalidUsername = errors.New("username must be 1-100 letters, digits, '.', '_' or '-'")

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}._-]{1,100}$`)

// LoginResult 是登录成功后返回的数据。
type LoginResult struct {
	AccessToken  string            `json:"token"`
	RefreshToken string            `json:"refreshToken"`
	User         *model.User       `json:"user"`
	Conversation *ConversationView `json:"conversation"`
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Login(ctx context.Context, username string) (*LoginResult, error)
	GetProfile(ctx context.Context, username string) (*model.User, error)
	Logout(ctx context.Context, tokenString string) error
	RefreshToken(ctx context.Context, refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	cases         CaseService
	sessionRepo   repository.SessionRepository
	sessions      *session.Manager
	conversations ConversationService
	jwtManager    *token.JWTManager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(cases CaseService, sessionRepo repository.SessionRepository, sessions *session.Manager, conversations ConversationService, jwtManager *token.JWTManager) UserService {
	return &userService{
		cases:         cases,
		sessionRepo:   sessionRepo,
		sessions:      sessions,
		conversations: conversations,
		jwtManager:    jwtManager,
	}
}

// Login 只需要用户名：记录最近登录时间、初始化会话并签发 token。
// 用户记录保存失败时只记录日志，登录仍然成功。
func (s *userService) Login(ctx context.Context, username string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return nil, ErrInvalidUsername
	}

	user := &model.User{Username: username, LastLoginAt: time.Now()}
	if err := s.cases.SaveUser(ctx, user); err != nil {
		log.Error("[UserService] 保存用户失败", err)
	}

	sess, err := s.sessions.Open(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("初始化会话失败: %w", err)
	}
	if err := s.conversations.Restore(ctx, sess); err != nil {
		log.Warnf("[UserService] 恢复当前案件失败, user=%s: %v", username, err)
	}

	accessToken, err := s.jwtManager.GenerateToken(username)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(username)
	if err != nil {
		return nil, err
	}

	view := s.conversations.Current(sess)
	log.Infof("[UserService] 用户登录成功, user=%s", username)
	return &LoginResult{AccessToken: accessToken, RefreshToken: refreshToken, User: user, Conversation: &view}, nil
}

// GetProfile 根据用户名获取用户详细信息。
func (s *userService) GetProfile(ctx context.Context, username string) (*model.User, error) {
	return s.cases.LoadUser(ctx, username)
}

// Logout 将 token 加入 Redis 黑名单，并关闭会话。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return err
	}
	// token 的剩余有效期将作为 Redis key 的过期时间。
	if err := s.sessionRepo.BlacklistToken(ctx, tokenString, time.Until(claims.ExpiresAt.Time)); err != nil {
		return err
	}
	return s.sessions.Close(ctx, claims.Username)
}

// RefreshToken 验证 refresh token 并签发新的 access token 和 refresh token。
func (s *userService) RefreshToken(ctx context.Context, refreshTokenString string) (string, string, error) {
	claims, err := s.jwtManager.VerifyToken(refreshTokenString)
	if err != nil {
		return "", "", err
	}
	if claims.Type != token.RefreshToken {
		return "", "", errors.New("not a refresh token")
	}
	if blacklisted, err := s.sessionRepo.IsTokenBlacklisted(ctx, refreshTokenString); err != nil || blacklisted {
		return "", "", errors.New("refresh token revoked")
	}
	if _, err := s.sessions.Open(ctx, claims.Username); err != nil {
		return "", "", err
	}
	newAccess, err := s.jwtManager.GenerateToken(claims.Username)
	if err != nil {
		return "", "", err
	}
	newRefresh, err := s.jwtManager.GenerateRefreshToken(claims.Username)
	if err != nil {
		return "", "", err
	}
	return newAccess, newRefresh, nil
}
