// Package app builds every long-lived dependency of the server once at
// startup and tears them down in reverse order.
package app

import (
	"context"
	"fmt"

	"github.com/ericyu4real/mscac-chatbot/internal/api"
	"github.com/ericyu4real/mscac-chatbot/internal/api/handlers"
	"github.com/ericyu4real/mscac-chatbot/internal/config"
	"github.com/ericyu4real/mscac-chatbot/internal/database"
	"github.com/ericyu4real/mscac-chatbot/internal/health"
	"github.com/ericyu4real/mscac-chatbot/internal/index"
	"github.com/ericyu4real/mscac-chatbot/internal/llm"
	"github.com/ericyu4real/mscac-chatbot/internal/messagelog"
	"github.com/ericyu4real/mscac-chatbot/internal/middleware"
	"github.com/ericyu4real/mscac-chatbot/internal/migration"
	"github.com/ericyu4real/mscac-chatbot/internal/prompt"
	"github.com/ericyu4real/mscac-chatbot/internal/repository"
	"github.com/ericyu4real/mscac-chatbot/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type App struct {
	Config    *config.Config
	Provider  *llm.OpenAIClient
	Index     index.Index
	DB        *database.Manager
	Retriever *index.Retriever
	Composer  *prompt.Composer
	Answers   *services.AnswerService
	Messages  *messagelog.MessageLog
	Health    *health.HealthChecker
	Limiter   *middleware.RateLimiter

	logger *logrus.Logger
}

// New wires the application. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (_ *App, err error) {
	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Provider = llm.NewOpenAI(llm.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		ChatModel:      cfg.OpenAI.ChatModel,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		Retry: llm.RetryConfig{
			MaxRetries: cfg.OpenAI.MaxRetries,
		},
	}, logger)

	if a.Index, err = openIndex(ctx, cfg, logger); err != nil {
		return nil, err
	}

	if cfg.Database.URL != "" || cfg.Redis.URL != "" {
		a.DB, err = database.NewManager(&database.Config{
			DatabaseURL: cfg.Database.URL,
			RedisURL:    cfg.Redis.URL,
			LogLevel:    cfg.LogLevel,
		}, logger)
		if err != nil {
			return nil, err
		}
	}

	a.Retriever = index.NewRetriever(a.Provider, a.Index, logger)
	if a.DB != nil && a.DB.Redis != nil {
		a.Retriever.WithCache(database.NewCache(a.DB.Redis, logger), cfg.Redis.CacheTTL)
	}

	if a.Composer, err = prompt.LoadComposer(cfg.Prompt.TemplatePath); err != nil {
		return nil, err
	}

	a.Answers = services.NewAnswerService(a.Retriever, a.Provider, a.Composer, services.AnswerConfig{
		TopK:            cfg.Answer.TopK,
		Timeout:         cfg.Answer.Timeout,
		MaxHistoryTurns: cfg.Answer.MaxHistoryTurns,
	}, logger)

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if a.Messages, err = messagelog.New(store, cfg.MessageLog.Timezone, logger); err != nil {
		store.Close()
		return nil, err
	}

	var redis health.RedisPinger
	if a.DB != nil && a.DB.Redis != nil {
		redis = a.DB
	}
	a.Health = health.NewHealthChecker(a.Messages, redis, a.Retriever, logger)

	if cfg.Server.RateLimit > 0 {
		a.Limiter = middleware.NewRateLimiter(cfg.Server.RateLimit)
	}

	logger.WithFields(logrus.Fields{
		"index":       cfg.Index.Backend,
		"fragments":   a.Index.Len(),
		"message_log": cfg.MessageLog.Backend,
		"cache":       redis != nil,
	}).Info("Application initialized")

	return a, nil
}

func openIndex(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (index.Index, error) {
	switch cfg.Index.Backend {
	case config.IndexQdrant:
		idx, err := index.NewQdrant(ctx, index.QdrantConfig{
			Host:       cfg.Index.Qdrant.Host,
			Port:       cfg.Index.Qdrant.Port,
			APIKey:     cfg.Index.Qdrant.APIKey,
			UseTLS:     cfg.Index.Qdrant.UseTLS,
			Collection: cfg.Index.Qdrant.Collection,
		}, logger)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case config.IndexLocal:
		idx, err := index.LoadLocal(cfg.Index.Path)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index backend: %s", cfg.Index.Backend)
	}
}

func (a *App) openStore(ctx context.Context) (messagelog.Store, error) {
	cfg := a.Config.MessageLog
	switch cfg.Backend {
	case config.LogBackendMongo:
		store, err := messagelog.NewMongoStore(ctx, cfg.MongoURI, cfg.Database)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.LogBackendPostgres:
		if a.DB == nil || a.DB.DB == nil {
			return nil, fmt.Errorf("%s message log: %w", cfg.Backend, database.ErrNotConfigured)
		}
		if err := migration.NewRunner(a.DB, a.logger).RunMigrations(); err != nil {
			return nil, fmt.Errorf("failed to migrate messages table: %w", err)
		}
		repos := repository.NewRepositoryManager(a.DB.DB)
		if count, err := repos.Message.Count(); err == nil {
			a.logger.WithField("messages", count).Info("Postgres message log ready")
		}
		return messagelog.NewPostgresStore(repos.Message, a.DB), nil
	case config.LogBackendFile:
		store, err := messagelog.NewFileStore(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown message log backend: %s", cfg.Backend)
	}
}

// Router builds the HTTP gateway over the wired dependencies
func (a *App) Router() *gin.Engine {
	return api.NewRouter(api.RouterConfig{
		Query:          handlers.NewQueryHandler(a.Answers, a.Messages, a.Config.Server.Banner, a.logger),
		Health:         handlers.NewHealthHandler(a.Health),
		RateLimiter:    a.Limiter,
		TrustedProxies: a.Config.Server.TrustedProxies,
		Logger:         a.logger,
	})
}

// Close releases resources in reverse order of New. Safe on a partially
// built App.
func (a *App) Close() {
	if a.Limiter != nil {
		a.Limiter.Stop()
	}
	if a.Messages != nil {
		if err := a.Messages.Close(); err != nil {
			a.logger.WithError(err).Error("Failed to close message store")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.logger.WithError(err).Error("Failed to close database connections")
		}
	}
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			a.logger.WithError(err).Error("Failed to close index")
		}
	}
}
