// internal/services/answer.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericyu4real/mscac-chatbot/internal/index"
	"github.com/ericyu4real/mscac-chatbot/internal/llm"
	"github.com/ericyu4real/mscac-chatbot/internal/prompt"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoAnswer = errors.New("no answer was generated")
	ErrTimeout  = errors.New("answer generation timed out")
)

// Retriever finds the fragments most similar to a question.
type Retriever interface {
	SimilaritySearch(ctx context.Context, question string, k int) ([]index.Fragment, error)
}

type AnswerConfig struct {
	TopK            int
	Timeout         time.Duration
	MaxHistoryTurns int
}

type Result struct {
	Answer            string
	Sources           []index.Fragment
	GeneratedQuestion string
}

type AnswerService struct {
	retriever Retriever
	completer llm.Completer
	composer  *prompt.Composer
	cfg       AnswerConfig
	logger    *logrus.Logger
}

func NewAnswerService(
	retriever Retriever,
	completer llm.Completer,
	composer *prompt.Composer,
	cfg AnswerConfig,
	logger *logrus.Logger,
) *AnswerService {
	if cfg.TopK <= 0 {
		cfg.TopK = 2
	}
	return &AnswerService{
		retriever: retriever,
		completer: completer,
		composer:  composer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Answer retrieves context for question and asks the completion provider
// to answer from it. A non-empty history is condensed into a standalone
// question first and replayed ahead of the prompt.
func (s *AnswerService) Answer(ctx context.Context, question string, history []prompt.Turn) (*Result, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	history = s.trimHistory(history)
	start := time.Now()

	standalone := question
	generated := ""
	if len(history) > 0 {
		q, err := s.condense(ctx, history, question)
		if err != nil {
			return nil, s.wrap(ctx, "condensing question", err)
		}
		standalone = q
		generated = q
	}

	fragments, err := s.retriever.SimilaritySearch(ctx, standalone, s.cfg.TopK)
	if err != nil {
		return nil, s.wrap(ctx, "retrieving context", err)
	}

	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Content
	}
	filled := s.composer.Compose(prompt.JoinFragments(texts), standalone)

	messages := make([]llm.Message, 0, 2*len(history)+1)
	for _, turn := range history {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: turn.User},
			llm.Message{Role: llm.RoleAssistant, Content: turn.Bot},
		)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: filled})

	answer, err := s.completer.Complete(ctx, messages)
	if err != nil {
		return nil, s.wrap(ctx, "generating answer", err)
	}
	if strings.TrimSpace(answer) == "" {
		return nil, ErrNoAnswer
	}

	s.logger.WithFields(logrus.Fields{
		"fragments":     len(fragments),
		"history_turns": len(history),
		"reformulated":  generated != "",
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("Answer generated")

	return &Result{
		Answer:            answer,
		Sources:           fragments,
		GeneratedQuestion: generated,
	}, nil
}

func (s *AnswerService) condense(ctx context.Context, history []prompt.Turn, question string) (string, error) {
	standalone, err := s.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: s.composer.Condense(history, question)},
	})
	if err != nil {
		return "", err
	}
	standalone = strings.TrimSpace(standalone)
	if standalone == "" {
		return question, nil
	}
	return standalone, nil
}

// trimHistory keeps only the most recent MaxHistoryTurns turns.
func (s *AnswerService) trimHistory(history []prompt.Turn) []prompt.Turn {
	if s.cfg.MaxHistoryTurns > 0 && len(history) > s.cfg.MaxHistoryTurns {
		return history[len(history)-s.cfg.MaxHistoryTurns:]
	}
	return history
}

func (s *AnswerService) wrap(ctx context.Context, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w while %s: %v", ErrTimeout, stage, err)
	}
	return fmt.Errorf("%s: %w", stage, err)
}
