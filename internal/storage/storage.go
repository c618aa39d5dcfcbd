package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
)

// Storage 聚合全部后端存储。各后端按配置独立启用，
// 未启用的后端字段为 nil，调用方使用前需判空。
type Storage struct {
	MySQL    *MySQL
	Redis    *Redis
	RabbitMQ *RabbitMQ
	MinIO    *MinIO
	Qdrant   *Qdrant
}

// NewStorage 按配置初始化所有启用的后端。
// 任一启用的后端初始化失败时，关闭已建立的连接并返回聚合错误，
// 不允许带着残缺的存储层继续运行。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	s := &Storage{}
	var initErrors []error

	if cfg.MySQL.Enabled {
		mysqlStore, err := NewMySQL(&cfg.MySQL)
		if err != nil {
			logger.Error().Err(err).Msg("MySQL存储初始化失败")
			initErrors = append(initErrors, fmt.Errorf("mysql: %w", err))
		} else {
			s.MySQL = mysqlStore
			logger.Info().Str("host", cfg.MySQL.Host).Str("database", cfg.MySQL.Database).Msg("MySQL存储已初始化")
		}
	}

	if cfg.Redis.Enabled {
		redisStore, err := NewRedis(ctx, &cfg.Redis)
		if err != nil {
			logger.Error().Err(err).Msg("Redis存储初始化失败")
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			s.Redis = redisStore
			logger.Info().Str("address", cfg.Redis.Address).Msg("Redis存储已初始化")
		}
	}

	if cfg.RabbitMQ.Enabled {
		mq, err := NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			logger.Error().Err(err).Msg("RabbitMQ初始化失败")
			initErrors = append(initErrors, fmt.Errorf("rabbitmq: %w", err))
		} else {
			s.RabbitMQ = mq
			logger.Info().Str("exchange", cfg.RabbitMQ.EventsExchange).Msg("RabbitMQ已初始化")
		}
	}

	if cfg.MinIO.Enabled {
		minioStore, err := NewMinIO(ctx, &cfg.MinIO)
		if err != nil {
			logger.Error().Err(err).Msg("MinIO存储初始化失败")
			initErrors = append(initErrors, fmt.Errorf("minio: %w", err))
		} else {
			s.MinIO = minioStore
			logger.Info().Str("endpoint", cfg.MinIO.Endpoint).Msg("MinIO存储已初始化")
		}
	}

	if cfg.Qdrant.Enabled {
		qdrantStore, err := NewQdrant(ctx, &cfg.Qdrant)
		if err != nil {
			logger.Error().Err(err).Msg("Qdrant向量存储初始化失败")
			initErrors = append(initErrors, fmt.Errorf("qdrant: %w", err))
		} else {
			s.Qdrant = qdrantStore
			logger.Info().Str("endpoint", cfg.Qdrant.Endpoint).Str("collection", cfg.Qdrant.Collection).Msg("Qdrant向量存储已初始化")
		}
	}

	if len(initErrors) > 0 {
		s.Close()
		return nil, errors.Join(initErrors...)
	}
	return s, nil
}

// HasPersistence 报告是否具备完整的持久化能力（MySQL 与对象存储同时可用）。
func (s *Storage) HasPersistence() bool {
	return s != nil && s.MySQL != nil && s.MinIO != nil
}

// Close 逆序关闭持有连接的后端，汇总关闭过程中的错误并记录日志。
func (s *Storage) Close() {
	if s == nil {
		return
	}
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	logger.Info().Msg("存储层已关闭")
}
