package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/vedran77/relay/internal/config"
	"github.com/vedran77/relay/internal/database"
	"github.com/vedran77/relay/internal/repository"
	"github.com/vedran77/relay/internal/repository/memory"
	postgresrepo "github.com/vedran77/relay/internal/repository/postgres"
	redisrepo "github.com/vedran77/relay/internal/repository/redis"
)

type stores struct {
	users     repository.UserRepository
	convs     repository.ConversationRepository
	messages  repository.MessageRepository
	reactions repository.ReactionRepository
	receipts  repository.ReceiptRepository
	presence  repository.PresenceStore
	typing    repository.TypingStore

	pool  *pgxpool.Pool
	redis *redis.Client
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	s := &stores{}

	switch cfg.Store.Driver {
	case "memory":
		// Memory mode trusts any authenticated id as a known user.
		db := memory.NewDB(memory.WithAutoUsers())
		s.users = memory.NewUserRepo(db)
		s.convs = memory.NewConversationRepo(db)
		s.messages = memory.NewMessageRepo(db)
		s.reactions = memory.NewReactionRepo(db)
		s.receipts = memory.NewReceiptRepo(db)
		logger.Warn("Using in-memory store; data is lost on restart")
	default:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		logger.Info("Connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, pool); err != nil {
				s.close()
				return nil, fmt.Errorf("migrating: %w", err)
			}
		}

		s.users = postgresrepo.NewUserRepo(pool)
		s.convs = postgresrepo.NewConversationRepo(pool)
		s.messages = postgresrepo.NewMessageRepo(pool)
		s.reactions = postgresrepo.NewReactionRepo(pool)
		s.receipts = postgresrepo.NewReceiptRepo(pool)
	}

	if cfg.Redis.URL == "" {
		s.presence = memory.NewPresenceStore()
		s.typing = memory.NewTypingStore()
		return s, nil
	}

	rdb, err := connectRedis(ctx, cfg.Redis)
	if err != nil {
		s.close()
		return nil, err
	}
	s.redis = rdb
	s.presence = redisrepo.NewPresenceStore(rdb)
	s.typing = redisrepo.NewTypingStore(rdb)
	logger.Info("Connected to Redis")
	return s, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return rdb, nil
}

func (s *stores) close() {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
