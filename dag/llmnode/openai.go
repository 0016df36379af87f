package llmnode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/arnedepeuter/deppy-go/dag"
)

// OpenAIModel adapts the Chat Completions API to ChatModel, retrying
// transient failures with a linearly increasing backoff.
type OpenAIModel struct {
	apiKey     string
	modelName  string
	maxRetries int
	retryDelay time.Duration
}

// NewOpenAIModel returns an OpenAIModel for modelName. An empty
// modelName defaults to gpt-4o.
func NewOpenAIModel(apiKey, modelName string) *OpenAIModel {
	if modelName == "" {
		modelName = "gpt-4o"
	}
	return &OpenAIModel{apiKey: apiKey, modelName: modelName, maxRetries: 3, retryDelay: time.Second}
}

func (m *OpenAIModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	var lastErr error
	var attempt int
	for attempt = 0; attempt <= m.maxRetries; attempt++ {
		out, err := m.call(ctx, messages, tools)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isTransient(err) || attempt >= m.maxRetries {
			break
		}
		select {
		case <-time.After(m.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return ChatOut{}, ctx.Err()
		}
	}
	return ChatOut{}, fmt.Errorf("llmnode: openai call failed after %d retries: %w", attempt, lastErr)
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range []string{"timeout", "network", "connection", "temporary", "503", "502", "500", "rate limit"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func (m *OpenAIModel) call(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if m.apiKey == "" {
		return ChatOut{}, errors.New("llmnode: openai api key is required")
	}

	client := openaisdk.NewClient(option.WithAPIKey(m.apiKey))

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(m.modelName),
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = toOpenAITools(tools)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ChatOut{}, fmt.Errorf("llmnode: openai api error: %w", err)
	}

	var out ChatOut
	if len(resp.Choices) == 0 {
		return out, nil
	}
	msg := resp.Choices[0].Message
	out.Text = msg.Content
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			Name:  tc.Function.Name,
			Input: map[string]any{"_raw": tc.Function.Arguments},
		})
	}
	return out, nil
}

func toOpenAIMessages(messages []Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out[i] = openaisdk.SystemMessage(msg.Content)
		case RoleAssistant:
			out[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			out[i] = openaisdk.UserMessage(msg.Content)
		}
	}
	return out
}

func toOpenAITools(tools []ToolSpec) []openaisdk.ChatCompletionToolParam {
	out := make([]openaisdk.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		out[i] = openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openaisdk.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Schema),
			},
		}
	}
	return out
}

// OpenAICallable returns a dag.Callable that sends args["messages"]
// ([]Message) and optional args["tools"] ([]ToolSpec) to the Chat
// Completions API and returns a ChatOut.
func OpenAICallable(apiKey, modelName string) dag.Callable {
	m := NewOpenAIModel(apiKey, modelName)
	return func(ctx context.Context, args map[string]any) (any, error) {
		return m.Chat(ctx, messagesArg(args), toolsArg(args))
	}
}
