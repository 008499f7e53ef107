package llm

import "time"

// Config configures the OpenAI-compatible provider client.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	// Temperature zero selects deterministic answers.
	Temperature float32
	Retry       RetryConfig
}

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 0,
		BaseDelay:  2 * time.Second,
		MaxDelay:   15 * time.Second,
	}
}
