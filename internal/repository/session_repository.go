// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const sessionTTL = 7 * 24 * time.Hour

// SessionRepository 定义了会话状态（当前案件 ID、token 黑名单）的操作接口。
type SessionRepository interface {
	GetOrCreateActiveConversation(ctx context.Context, username string) (string, error)
	SetActiveConversation(ctx context.Context, username, conversationID string) error
	ClearActiveConversation(ctx context.Context, username string) error
	BlacklistToken(ctx context.Context, token string, ttl time.Duration) error
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)
}

type redisSessionRepository struct {
	redisClient *redis.Client
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(redisClient *redis.Client) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient}
}

func activeConversationKey(username string) string {
	return fmt.Sprintf("user:%s:current_conversation", username)
}

// GetOrCreateActiveConversation 获取用户当前的案件 ID，不存在时分配一个新的。
func (r *redisSessionRepository) GetOrCreateActiveConversation(ctx context.Context, username string) (string, error) {
	key := activeConversationKey(username)
	convID, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		convID = uuid.NewString()
		if err := r.redisClient.Set(ctx, key, convID, sessionTTL).Err(); err != nil {
			return "", fmt.Errorf("failed to set conversation id: %w", err)
		}
		return convID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get conversation id: %w", err)
	}
	return convID, nil
}

// SetActiveConversation 将用户当前的案件切换为指定 ID。
func (r *redisSessionRepository) SetActiveConversation(ctx context.Context, username, conversationID string) error {
	if err := r.redisClient.Set(ctx, activeConversationKey(username), conversationID, sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation id: %w", err)
	}
	return nil
}

// ClearActiveConversation 在登出时清除当前案件。
func (r *redisSessionRepository) ClearActiveConversation(ctx context.Context, username string) error {
	if err := r.redisClient.Del(ctx, activeConversationKey(username)).Err(); err != nil {
		return fmt.Errorf("failed to clear conversation id: %w", err)
	}
	return nil
}

// BlacklistToken 将 token 加入黑名单，过期时间为 token 的剩余有效期。
func (r *redisSessionRepository) BlacklistToken(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.redisClient.Set(ctx, "blacklist:"+token, "true", ttl).Err()
}

// IsTokenBlacklisted 检查 token 是否已登出。
func (r *redisSessionRepository) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := r.redisClient.Exists(ctx, "blacklist:"+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
