package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	IndexLocal  = "local"
	IndexQdrant = "qdrant"

	LogBackendFile     = "file"
	LogBackendMongo    = "mongo"
	LogBackendPostgres = "postgres"
)

var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is required")

type Config struct {
	Server struct {
		Port           string
		Banner         string
		RateLimit      int
		TrustedProxies []string
	}
	OpenAI struct {
		APIKey         string
		BaseURL        string
		ChatModel      string
		EmbeddingModel string
		MaxRetries     int
	}
	Answer struct {
		TopK            int
		Timeout         time.Duration
		MaxHistoryTurns int
	}
	Prompt struct {
		TemplatePath string
	}
	Index struct {
		Backend string
		Path    string
		Qdrant  struct {
			Host       string
			Port       int
			APIKey     string
			UseTLS     bool
			Collection string
		}
	}
	MessageLog struct {
		Backend  string
		Timezone string
		FilePath string
		MongoURI string
		Database string
	}
	Database struct {
		URL string
	}
	Redis struct {
		URL      string
		CacheTTL time.Duration
	}
	LogLevel string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Deployment env names that do not follow the key path.
	_ = v.BindEnv("server.port", "PORT", "SERVER_PORT")
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("message_log.mongo_uri", "MONGODB", "mongodb")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config

	config.Server.Port = v.GetString("server.port")
	config.Server.Banner = v.GetString("server.banner")
	config.Server.RateLimit = v.GetInt("server.rate_limit")
	config.Server.TrustedProxies = splitList(v.GetStringSlice("server.trusted_proxies"))

	config.OpenAI.APIKey = v.GetString("openai.api_key")
	config.OpenAI.BaseURL = v.GetString("openai.base_url")
	config.OpenAI.ChatModel = v.GetString("openai.chat_model")
	config.OpenAI.EmbeddingModel = v.GetString("openai.embedding_model")
	config.OpenAI.MaxRetries = v.GetInt("openai.max_retries")

	config.Answer.TopK = v.GetInt("answer.top_k")
	config.Answer.Timeout = v.GetDuration("answer.timeout")
	config.Answer.MaxHistoryTurns = v.GetInt("answer.max_history_turns")

	config.Prompt.TemplatePath = v.GetString("prompt.template_path")

	config.Index.Backend = strings.ToLower(v.GetString("index.backend"))
	config.Index.Path = v.GetString("index.path")
	config.Index.Qdrant.Host = v.GetString("index.qdrant.host")
	config.Index.Qdrant.Port = v.GetInt("index.qdrant.port")
	config.Index.Qdrant.APIKey = v.GetString("index.qdrant.api_key")
	config.Index.Qdrant.UseTLS = v.GetBool("index.qdrant.use_tls")
	config.Index.Qdrant.Collection = v.GetString("index.qdrant.collection")

	config.MessageLog.Backend = strings.ToLower(v.GetString("message_log.backend"))
	config.MessageLog.Timezone = v.GetString("message_log.timezone")
	config.MessageLog.FilePath = v.GetString("message_log.file_path")
	config.MessageLog.MongoURI = v.GetString("message_log.mongo_uri")
	config.MessageLog.Database = v.GetString("message_log.database")

	config.Database.URL = v.GetString("database.url")
	config.Redis.URL = v.GetString("redis.url")
	config.Redis.CacheTTL = v.GetDuration("redis.cache_ttl")

	config.LogLevel = v.GetString("log_level")

	return &config, nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.banner", "This is MScAC chatbot's backend. Please do not share this with anyone.")
	v.SetDefault("server.rate_limit", 60)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("openai.chat_model", "gpt-3.5-turbo")
	v.SetDefault("openai.embedding_model", "text-embedding-ada-002")
	v.SetDefault("openai.max_retries", 0)

	v.SetDefault("answer.top_k", 2)
	v.SetDefault("answer.timeout", 60*time.Second)
	v.SetDefault("answer.max_history_turns", 10)

	v.SetDefault("index.backend", IndexLocal)
	v.SetDefault("index.path", "data/index.json")
	v.SetDefault("index.qdrant.host", "localhost")
	v.SetDefault("index.qdrant.port", 6334)
	v.SetDefault("index.qdrant.collection", "mscac")

	v.SetDefault("message_log.backend", LogBackendMongo)
	v.SetDefault("message_log.timezone", "America/Toronto")
	v.SetDefault("message_log.file_path", "data/messages.json")
	v.SetDefault("message_log.database", "chatbot")

	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.cache_ttl", 10*time.Minute)
}

// Validate reports configuration that would make the server unusable.
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Answer.TopK <= 0 {
		return fmt.Errorf("answer.top_k must be positive, got %d", c.Answer.TopK)
	}
	for _, proxy := range c.Server.TrustedProxies {
		if !validProxy(proxy) {
			return fmt.Errorf("server.trusted_proxies: invalid IP or CIDR %q", proxy)
		}
	}

	switch c.Index.Backend {
	case IndexLocal:
		if c.Index.Path == "" {
			return fmt.Errorf("index.path is required for the %s index", IndexLocal)
		}
	case IndexQdrant:
		if c.Index.Qdrant.Collection == "" {
			return fmt.Errorf("index.qdrant.collection is required for the %s index", IndexQdrant)
		}
	default:
		return fmt.Errorf("unknown index backend: %s", c.Index.Backend)
	}

	switch c.MessageLog.Backend {
	case LogBackendFile:
		if c.MessageLog.FilePath == "" {
			return fmt.Errorf("message_log.file_path is required for the %s backend", LogBackendFile)
		}
	case LogBackendMongo:
		if c.MessageLog.MongoURI == "" {
			return fmt.Errorf("MONGODB is required for the %s backend", LogBackendMongo)
		}
	case LogBackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the %s backend", LogBackendPostgres)
		}
	default:
		return fmt.Errorf("unknown message log backend: %s", c.MessageLog.Backend)
	}

	return nil
}

func validProxy(s string) bool {
	if strings.Contains(s, "/") {
		_, _, err := net.ParseCIDR(s)
		return err == nil
	}
	return net.ParseIP(s) != nil
}
