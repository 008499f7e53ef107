package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ericyu4real/mscac-chatbot/internal/index"
	"github.com/ericyu4real/mscac-chatbot/internal/llm"
	"github.com/ericyu4real/mscac-chatbot/internal/prompt"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	fragments []index.Fragment
	err       error
	questions []string
	ks        []int
}

func (s *stubRetriever) SimilaritySearch(ctx context.Context, question string, k int) ([]index.Fragment, error) {
	s.questions = append(s.questions, question)
	s.ks = append(s.ks, k)
	if s.err != nil {
		return nil, s.err
	}
	if k < len(s.fragments) {
		return s.fragments[:k], nil
	}
	return s.fragments, nil
}

type stubCompleter struct {
	replies []string
	err     error
	calls   [][]llm.Message
	block   bool
}

func (s *stubCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	s.calls = append(s.calls, messages)
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

func newService(r Retriever, c llm.Completer, cfg AnswerConfig) *AnswerService {
	return NewAnswerService(r, c, prompt.NewComposer(), cfg, logrus.New())
}

func fragments() []index.Fragment {
	return []index.Fragment{
		{Content: "Applications close on January 15.", Score: 0.9},
		{Content: "Decisions are released in March.", Score: 0.8},
		{Content: "Unrelated fragment.", Score: 0.1},
	}
}

func TestAnswer_NoHistory(t *testing.T) {
	r := &stubRetriever{fragments: fragments()}
	c := &stubCompleter{replies: []string{"January 15."}}
	svc := newService(r, c, AnswerConfig{TopK: 2})

	res, err := svc.Answer(context.Background(), "What is the application deadline?", nil)
	require.NoError(t, err)

	assert.Equal(t, "January 15.", res.Answer)
	assert.Len(t, res.Sources, 2)
	assert.Empty(t, res.GeneratedQuestion)
	assert.Equal(t, []string{"What is the application deadline?"}, r.questions)
	assert.Equal(t, []int{2}, r.ks)

	require.Len(t, c.calls, 1)
	require.Len(t, c.calls[0], 1)
	msg := c.calls[0][0]
	assert.Equal(t, llm.RoleUser, msg.Role)
	assert.Contains(t, msg.Content, "You are a helpful AI assistant working for MScAC")
	assert.Contains(t, msg.Content, "Applications close on January 15.\n\nDecisions are released in March.\nQuestion: What is the application deadline?")
	assert.NotContains(t, msg.Content, "Unrelated fragment.")
}

func TestAnswer_TopKIsConfigurable(t *testing.T) {
	r := &stubRetriever{fragments: fragments()}
	c := &stubCompleter{replies: []string{"ok"}}

	res, err := newService(r, c, AnswerConfig{TopK: 1}).Answer(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Len(t, res.Sources, 1)
	assert.Equal(t, []int{1}, r.ks)
}

func TestAnswer_WithHistoryReformulates(t *testing.T) {
	r := &stubRetriever{fragments: fragments()}
	c := &stubCompleter{replies: []string{"When is the MScAC application deadline?", "January 15."}}
	svc := newService(r, c, AnswerConfig{TopK: 2})

	history := []prompt.Turn{{User: "Tell me about MScAC", Bot: "It is a professional master's program."}}
	res, err := svc.Answer(context.Background(), "When is the deadline?", history)
	require.NoError(t, err)

	assert.Equal(t, "When is the MScAC application deadline?", res.GeneratedQuestion)
	assert.Equal(t, []string{"When is the MScAC application deadline?"}, r.questions)

	require.Len(t, c.calls, 2)
	assert.Contains(t, c.calls[0][0].Content, "Follow Up Input: When is the deadline?")

	final := c.calls[1]
	require.Len(t, final, 3)
	assert.Equal(t, llm.RoleUser, final[0].Role)
	assert.Equal(t, "Tell me about MScAC", final[0].Content)
	assert.Equal(t, llm.RoleAssistant, final[1].Role)
	assert.Contains(t, final[2].Content, "Question: When is the MScAC application deadline?")
}

func TestAnswer_TrimsHistory(t *testing.T) {
	r := &stubRetriever{fragments: fragments()}
	c := &stubCompleter{replies: []string{"standalone", "answer"}}
	svc := newService(r, c, AnswerConfig{TopK: 2, MaxHistoryTurns: 1})

	history := []prompt.Turn{{User: "old", Bot: "old reply"}, {User: "new", Bot: "new reply"}}
	_, err := svc.Answer(context.Background(), "q", history)
	require.NoError(t, err)

	final := c.calls[1]
	require.Len(t, final, 3)
	assert.Equal(t, "new", final[0].Content)
}

func TestAnswer_EmptyAnswer(t *testing.T) {
	svc := newService(&stubRetriever{fragments: fragments()}, &stubCompleter{replies: []string{"   "}}, AnswerConfig{TopK: 2})

	res, err := svc.Answer(context.Background(), "q", nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNoAnswer)
}

func TestAnswer_RetrievalFailure(t *testing.T) {
	c := &stubCompleter{replies: []string{"unused"}}
	svc := newService(&stubRetriever{err: errors.New("index unavailable")}, c, AnswerConfig{TopK: 2})

	res, err := svc.Answer(context.Background(), "q", nil)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "retrieving context"))
	assert.Empty(t, c.calls)
}

func TestAnswer_CompletionFailure(t *testing.T) {
	svc := newService(&stubRetriever{fragments: fragments()}, &stubCompleter{err: errors.New("rate limited")}, AnswerConfig{TopK: 2})

	res, err := svc.Answer(context.Background(), "q", nil)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestAnswer_Timeout(t *testing.T) {
	svc := newService(&stubRetriever{fragments: fragments()}, &stubCompleter{block: true}, AnswerConfig{TopK: 2, Timeout: 20 * time.Millisecond})

	res, err := svc.Answer(context.Background(), "q", nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrTimeout)
}
