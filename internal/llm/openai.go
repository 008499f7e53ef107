package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyCompletion = errors.New("provider returned no completion choices")
	ErrEmptyEmbedding  = errors.New("provider returned no embedding")
)

type OpenAIClient struct {
	client *openai.Client
	cfg    Config
	logger *logrus.Logger
}

func NewOpenAI(cfg Config, logger *logrus.Logger) *OpenAIClient {
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = openai.GPT3Dot5Turbo
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(openai.AdaEmbeddingV2)
	}
	if cfg.Retry.BaseDelay == 0 {
		defaults := DefaultRetryConfig()
		cfg.Retry.BaseDelay = defaults.BaseDelay
		cfg.Retry.MaxDelay = defaults.MaxDelay
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(oaCfg),
		cfg:    cfg,
		logger: logger,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	promptSize := 0
	for _, m := range messages {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		promptSize += len(m.Content)
	}

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Messages:    oaMsgs,
		Temperature: requestTemperature(c.cfg.Temperature),
	}

	c.logger.WithFields(logrus.Fields{
		"model":       req.Model,
		"messages":    len(oaMsgs),
		"prompt_size": promptSize,
	}).Debug("Requesting chat completion")

	var resp openai.ChatCompletionResponse
	err := c.retryOperation(ctx, func() error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	c.logger.WithFields(logrus.Fields{
		"model":             resp.Model,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"finish_reason":     resp.Choices[0].FinishReason,
	}).Debug("Chat completion received")

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// requestTemperature maps zero to the smallest positive float32. The request
// field is omitempty, so a literal zero would fall back to the provider default.
func requestTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
	}

	c.logger.WithFields(logrus.Fields{
		"model":      c.cfg.EmbeddingModel,
		"input_size": len(text),
	}).Debug("Requesting embedding")

	var resp openai.EmbeddingResponse
	err := c.retryOperation(ctx, func() error {
		var err error
		resp, err = c.client.CreateEmbeddings(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return resp.Data[0].Embedding, nil
}
