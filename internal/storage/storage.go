package storage

import (
	"context"
	"fmt"
	"strings"

	"resume-match-go/internal/config"
	applogger "resume-match-go/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 关系型数据库
	MySQL *MySQL

	// 对象存储
	MinIO *MinIO

	// 键值存储
	Redis *Redis

	// 消息队列
	RabbitMQ *RabbitMQ
}

// NewStorage 创建存储管理器
// 非核心组件(Redis/RabbitMQ)初始化失败只告警不中断，MySQL与MinIO是硬依赖。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	storage := &Storage{}
	var initErrors []string
	var err error

	storage.MySQL, err = NewMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}

	storage.MinIO, err = NewMinIO(&cfg.MinIO)
	if err != nil {
		return nil, fmt.Errorf("初始化MinIO失败: %w", err)
	}

	if cfg.Redis.Address != "" {
		storage.Redis, err = NewRedis(&cfg.Redis)
		if err != nil {
			applogger.Warn().Err(err).Msg("初始化Redis失败，提取文本缓存与进度快照不可用")
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		}
	}

	if cfg.RabbitMQ.URL != "" {
		storage.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			applogger.Warn().Err(err).Msg("初始化RabbitMQ失败，会话事件不会发布")
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		}
	}

	if len(initErrors) > 0 {
		applogger.Warn().Str("components", strings.Join(initErrors, "; ")).Msg("部分存储组件初始化失败")
	}
	return storage, nil
}

// Close 关闭所有存储连接
func (s *Storage) Close() error {
	var errs []string
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("RabbitMQ: %v", err))
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("Redis: %v", err))
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("MySQL: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("关闭存储连接失败: %s", strings.Join(errs, "; "))
	}
	return nil
}
