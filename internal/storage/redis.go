package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	applogger "resume-match-go/internal/logger"

	"github.com/redis/go-redis/v9"
)

// Redis 提供键值缓存功能
type Redis struct {
	client       *redis.Client
	cfg          *config.RedisConfig
	textCacheTTL time.Duration
}

// SessionProgress 会话进度快照，供轮询接口读取
type SessionProgress struct {
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	TotalCount     int    `json:"total_count"`
	ProcessedCount int    `json:"processed_count"`
	UpdatedAt      int64  `json:"updated_at"` // Unix秒
}

// NewRedis 创建Redis客户端
func NewRedis(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("Redis配置不能为空")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接Redis失败 (%s): %w", cfg.Address, err)
	}

	applogger.Info().Str("address", cfg.Address).Msg("Redis客户端初始化成功")
	return &Redis{
		client:       client,
		cfg:          cfg,
		textCacheTTL: time.Duration(cfg.TextCacheExpireDays) * 24 * time.Hour,
	}, nil
}

// GetCachedText 按存储键读取提取文本缓存，未命中返回("", false, nil)
func (r *Redis) GetCachedText(ctx context.Context, storageKey string) (string, bool, error) {
	key := fmt.Sprintf(constants.KeyResumeExtractedText, storageKey)
	text, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("读取文本缓存失败: %w", err)
	}
	return text, true, nil
}

// CacheText 按存储键写入提取文本缓存
func (r *Redis) CacheText(ctx context.Context, storageKey, text string) error {
	key := fmt.Sprintf(constants.KeyResumeExtractedText, storageKey)
	if err := r.client.Set(ctx, key, text, r.textCacheTTL).Err(); err != nil {
		return fmt.Errorf("写入文本缓存失败: %w", err)
	}
	return nil
}

// SetSessionProgress 写入会话进度快照
func (r *Redis) SetSessionProgress(ctx context.Context, progress SessionProgress) error {
	progress.UpdatedAt = time.Now().Unix()
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("序列化会话进度失败: %w", err)
	}
	key := fmt.Sprintf(constants.KeySessionProgress, progress.SessionID)
	if err := r.client.Set(ctx, key, data, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("写入会话进度失败: %w", err)
	}
	return nil
}

// GetSessionProgress 读取会话进度快照，未命中返回(nil, nil)
func (r *Redis) GetSessionProgress(ctx context.Context, sessionID string) (*SessionProgress, error) {
	key := fmt.Sprintf(constants.KeySessionProgress, sessionID)
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取会话进度失败: %w", err)
	}
	var progress SessionProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("解析会话进度失败: %w", err)
	}
	return &progress, nil
}

// DeleteSessionProgress 删除会话进度快照
func (r *Redis) DeleteSessionProgress(ctx context.Context, sessionID string) error {
	key := fmt.Sprintf(constants.KeySessionProgress, sessionID)
	return r.client.Del(ctx, key).Err()
}

// Close 关闭Redis连接
func (r *Redis) Close() error {
	return r.client.Close()
}
