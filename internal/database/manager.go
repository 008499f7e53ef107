package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdlog "log"
	"time"

	"github.com/ericyu4real/mscac-chatbot/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotConfigured = errors.New("connection not configured")

// Database connection manager. DB and Redis are nil when their URL is empty.
type Manager struct {
	DB     *gorm.DB
	Redis  *redis.Client
	logger *logrus.Logger
}

// Database configuration
type Config struct {
	DatabaseURL string
	RedisURL    string
	LogLevel    string
}

// NewManager opens whichever connections are configured
func NewManager(config *Config, log *logrus.Logger) (*Manager, error) {
	m := &Manager{logger: log}

	if config.DatabaseURL != "" {
		db, err := openPostgres(config, log)
		if err != nil {
			return nil, err
		}
		m.DB = db
	}

	if config.RedisURL != "" {
		client, err := openRedis(config.RedisURL)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.Redis = client
	}

	log.WithFields(logrus.Fields{
		"postgres": m.DB != nil,
		"redis":    m.Redis != nil,
	}).Info("Database connections established")

	return m, nil
}

func openPostgres(config *Config, log *logrus.Logger) (*gorm.DB, error) {
	// Configure GORM logger
	var gormLogger logger.Interface
	switch config.LogLevel {
	case "debug":
		gormLogger = logger.New(
			stdlog.New(log.Writer(), "", 0),
			logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  logger.Info,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		)
	default:
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(postgres.Open(config.DatabaseURL), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func openRedis(url string) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.PoolSize = 20
	redisOpts.MinIdleConns = 2
	redisOpts.MaxConnAge = time.Hour
	redisOpts.IdleTimeout = 30 * time.Minute

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Migrate runs database migrations
func (m *Manager) Migrate() error {
	if m.DB == nil {
		return ErrNotConfigured
	}
	m.logger.Info("Running database migrations...")
	return m.DB.AutoMigrate(&models.Message{})
}

// Exec runs one raw statement outside the prepared statement cache
func (m *Manager) Exec(stmt string) error {
	if m.DB == nil {
		return ErrNotConfigured
	}
	return m.DB.Session(&gorm.Session{PrepareStmt: false}).Exec(stmt).Error
}

// Close closes all database connections
func (m *Manager) Close() error {
	if m.Redis != nil {
		if err := m.Redis.Close(); err != nil {
			m.logger.WithError(err).Error("Failed to close Redis connection")
		}
	}

	if m.DB != nil {
		sqlDB, err := m.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	return nil
}

// Health check methods
func (m *Manager) PingDatabase() error {
	if m.DB == nil {
		return ErrNotConfigured
	}
	sqlDB, err := m.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (m *Manager) PingRedis() error {
	if m.Redis == nil {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Redis.Ping(ctx).Err()
}

// Cache implementation
type Cache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewCache(client *redis.Client, logger *logrus.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger,
	}
}

// Cache key constants
const (
	RetrievalResultsKey = "retrieval:results:%s"
)

// CacheRetrieval caches retrieved fragments for a question key
func (c *Cache) CacheRetrieval(ctx context.Context, key string, results interface{}, expiration time.Duration) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal retrieval results: %w", err)
	}

	return c.client.Set(ctx, fmt.Sprintf(RetrievalResultsKey, key), data, expiration).Err()
}

// GetCachedRetrieval loads cached fragments into result; redis.Nil on miss
func (c *Cache) GetCachedRetrieval(ctx context.Context, key string, result interface{}) error {
	data, err := c.client.Get(ctx, fmt.Sprintf(RetrievalResultsKey, key)).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, result)
}

// InvalidateRetrieval removes every cached retrieval result, used after the
// index is rebuilt.
func (c *Cache) InvalidateRetrieval(ctx context.Context) (int, error) {
	iter := c.client.Scan(ctx, 0, fmt.Sprintf(RetrievalResultsKey, "*"), 100).Iterator()
	removed := 0
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	c.logger.WithField("keys", removed).Info("Retrieval cache invalidated")
	return removed, nil
}
