// internal/api/handlers/query.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ericyu4real/mscac-chatbot/internal/messagelog"
	"github.com/ericyu4real/mscac-chatbot/internal/models"
	"github.com/ericyu4real/mscac-chatbot/internal/prompt"
	"github.com/ericyu4real/mscac-chatbot/internal/services"
	"github.com/ericyu4real/mscac-chatbot/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Client-facing error messages. Error detail stays in the logs.
const (
	MsgMissingQuery   = "Please enter a query."
	MsgInvalidHistory = "Invalid chat history."
	MsgNoAnswer       = "No answer was generated. Please try again."
	MsgTimeout        = "The assistant took too long to respond. Please try again."
	MsgAnswerFailed   = "Failed to generate an answer."
	MsgRecordFailed   = "Failed to record message."
)

const recordTimeout = 10 * time.Second

type Answerer interface {
	Answer(ctx context.Context, question string, history []prompt.Turn) (*services.Result, error)
}

type Recorder interface {
	Record(ctx context.Context, clientAddress, text string) bool
}

type QueryHandler struct {
	answerer Answerer
	recorder Recorder
	banner   string
	logger   *logrus.Logger
}

func NewQueryHandler(answerer Answerer, recorder Recorder, banner string, logger *logrus.Logger) *QueryHandler {
	return &QueryHandler{
		answerer: answerer,
		recorder: recorder,
		banner:   banner,
		logger:   logger,
	}
}

// HandleBanner answers GET / with the fixed banner text
func (h *QueryHandler) HandleBanner(c *gin.Context) {
	c.String(http.StatusOK, h.banner)
}

// HandleQuery processes POST /query
func (h *QueryHandler) HandleQuery(c *gin.Context) {
	startTime := time.Now()

	query := strings.TrimSpace(c.PostForm("query"))
	if query == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, MsgMissingQuery)
		return
	}

	history, err := parseHistory(c.PostForm("history"))
	if err != nil {
		h.logger.WithError(err).WithField("request_id", c.GetString("request_id")).Warn("Rejected chat history")
		utils.ErrorResponse(c, http.StatusBadRequest, MsgInvalidHistory)
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"request_id":    c.GetString("request_id"),
		"client_ip":     c.ClientIP(),
		"history_turns": len(history),
	})
	log.WithField("query", query).Info("Processing query")

	result, err := h.answerer.Answer(c.Request.Context(), query, history)
	if err != nil {
		log.WithError(err).Error("Answering failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, answerErrorMessage(err))
		return
	}

	// The exchange is logged even if the client has already gone away.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), recordTimeout)
	defer cancel()
	if !h.recorder.Record(recordCtx, c.ClientIP(), messagelog.FormatExchange(query, result.Answer)) {
		utils.ErrorResponse(c, http.StatusInternalServerError, MsgRecordFailed)
		return
	}

	log.WithFields(logrus.Fields{
		"sources":     len(result.Sources),
		"duration_ms": time.Since(startTime).Milliseconds(),
	}).Info("Query answered")

	utils.SuccessResponse(c, http.StatusOK, models.QueryResponse{
		Response:          result.Answer,
		GeneratedQuestion: result.GeneratedQuestion,
		Sources:           result.Sources,
	})
}

func answerErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrNoAnswer):
		return MsgNoAnswer
	case errors.Is(err, services.ErrTimeout):
		return MsgTimeout
	default:
		return MsgAnswerFailed
	}
}

var errIncompleteTurn = errors.New("history entry is missing user_message or bot_message")

// parseHistory decodes the JSON history field. An empty field means no history.
func parseHistory(raw string) ([]prompt.Turn, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	turns := make([]prompt.Turn, 0, len(entries))
	for _, e := range entries {
		if e.UserMessage == nil || e.BotMessage == nil {
			return nil, errIncompleteTurn
		}
		turns = append(turns, prompt.Turn{User: e.UserMessage.Body, Bot: e.BotMessage.Body})
	}
	return turns, nil
}
