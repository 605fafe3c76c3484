package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

type chatResult struct {
	Command    string  `json:"command"`
	Confidence float64 `json:"confidence"`
}

const chatPrompt = `
You are VOX-NLU, the command classifier for a home automation controller.
Your ONLY job is to pick which canonical command the user's utterance means.

RULES:
1. Output ONLY JSON. No markdown, no explanations.
2. "command" MUST be copied verbatim from the list below, or be "" when nothing fits.
3. "confidence" is a number between 0 and 1.
4. Never invent commands.

OUTPUT FORMAT:
{"command": "<canonical command or empty>", "confidence": <0..1>}

CANONICAL COMMANDS:
%s
`

// ChatMatcher asks a chat model to classify the transcript into one of the
// catalog phrases.
type ChatMatcher struct {
	client  openai.Client
	model   string
	catalog Catalog
	prompt  string
}

func NewChatMatcher(client openai.Client, model string, catalog Catalog) *ChatMatcher {
	if model == "" {
		model = string(openai.ChatModelGPT5Nano)
	}

	var list strings.Builder
	for _, p := range catalog.Phrases() {
		list.WriteString("- ")
		list.WriteString(p)
		list.WriteString("\n")
	}

	return &ChatMatcher{
		client:  client,
		model:   model,
		catalog: catalog,
		prompt:  fmt.Sprintf(chatPrompt, list.String()),
	}
}

func (m *ChatMatcher) Prepare(context.Context) error {
	if len(m.catalog) == 0 {
		return fmt.Errorf("empty catalog")
	}
	return nil
}

func (m *ChatMatcher) Match(ctx context.Context, text string) (string, float64, error) {
	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(m.prompt),
			openai.UserMessage(text),
		},
		Model: openai.ChatModel(m.model),
	})
	if err != nil {
		return "", 0, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", 0, fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", 0, fmt.Errorf("empty message content")
	}

	log.Debug("Classified", "data", content)

	return m.parse(content)
}

func (m *ChatMatcher) parse(content string) (string, float64, error) {
	var out chatResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return "", 0, fmt.Errorf("unmarshal classification: %w (raw: %s)", err, content)
	}

	if _, ok := m.catalog[out.Command]; !ok {
		return "", 0, nil
	}

	return out.Command, min(max(out.Confidence, 0), 1), nil
}
