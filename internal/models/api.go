package models

import "github.com/ericyu4real/mscac-chatbot/internal/index"

// HistoryEntry is one element of the JSON-encoded "history" form field.
type HistoryEntry struct {
	UserMessage *MessageBody `json:"user_message"`
	BotMessage  *MessageBody `json:"bot_message"`
}

type MessageBody struct {
	Body string `json:"body"`
}

type QueryResponse struct {
	Response          string           `json:"response"`
	GeneratedQuestion string           `json:"generated_question,omitempty"`
	Sources           []index.Fragment `json:"sources,omitempty"`
}
