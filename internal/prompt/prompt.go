// Package prompt holds the fixed prompt templates sent to the completion
// provider. Templates are plain text with {name} placeholders.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

const (
	Version = "v1"

	contextPlaceholder  = "{context}"
	questionPlaceholder = "{question}"
	historyPlaceholder  = "{chat_history}"
)

//go:embed templates/mscac_v1.txt
var answerTemplateV1 string

//go:embed templates/condense_v1.txt
var condenseTemplateV1 string

// Turn is one prior exchange of the conversation.
type Turn struct {
	User string
	Bot  string
}

// Composer fills the answer and condense templates. It is immutable and
// safe for concurrent use.
type Composer struct {
	answer   string
	condense string
}

func NewComposer() *Composer {
	return &Composer{answer: answerTemplateV1, condense: condenseTemplateV1}
}

// LoadComposer replaces the answer template with the file at path. An
// empty path keeps the built-in template.
func LoadComposer(path string) (*Composer, error) {
	c := NewComposer()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt template: %w", err)
	}
	tmpl := string(data)
	for _, p := range []string{contextPlaceholder, questionPlaceholder} {
		if !strings.Contains(tmpl, p) {
			return nil, fmt.Errorf("prompt template %s is missing %s", path, p)
		}
	}
	c.answer = tmpl
	return c, nil
}

// Compose substitutes retrieved context and the question into the answer
// template. Substituted values are never re-expanded.
func (c *Composer) Compose(contextText, question string) string {
	return strings.NewReplacer(
		contextPlaceholder, contextText,
		questionPlaceholder, question,
	).Replace(c.answer)
}

// Condense builds the prompt asking for a standalone version of question.
func (c *Composer) Condense(history []Turn, question string) string {
	return strings.NewReplacer(
		historyPlaceholder, FormatHistory(history),
		questionPlaceholder, question,
	).Replace(c.condense)
}

func FormatHistory(history []Turn) string {
	var sb strings.Builder
	for _, t := range history {
		sb.WriteString("\nHuman: ")
		sb.WriteString(t.User)
		sb.WriteString("\nAssistant: ")
		sb.WriteString(t.Bot)
	}
	return sb.String()
}

// JoinFragments concatenates fragment texts the way they are placed into
// the context placeholder.
func JoinFragments(texts []string) string {
	return strings.Join(texts, "\n\n")
}
