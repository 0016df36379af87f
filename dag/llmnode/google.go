package llmnode

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/arnedepeuter/deppy-go/dag"
)

// GeminiModel adapts Gemini's GenerateContent API to ChatModel.
type GeminiModel struct {
	apiKey    string
	modelName string
}

// NewGeminiModel returns a GeminiModel for modelName. An empty
// modelName defaults to gemini-2.5-flash.
func NewGeminiModel(apiKey, modelName string) *GeminiModel {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	return &GeminiModel{apiKey: apiKey, modelName: modelName}
}

func (m *GeminiModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}
	if m.apiKey == "" {
		return ChatOut{}, errors.New("llmnode: google api key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(m.apiKey))
	if err != nil {
		return ChatOut{}, fmt.Errorf("llmnode: create google client: %w", err)
	}
	defer client.Close()

	genModel := client.GenerativeModel(m.modelName)
	if len(tools) > 0 {
		genModel.Tools = toGeminiTools(tools)
	}

	resp, err := genModel.GenerateContent(ctx, toGeminiParts(messages)...)
	if err != nil {
		return ChatOut{}, fmt.Errorf("llmnode: gemini api error: %w", err)
	}

	return fromGeminiResponse(resp), nil
}

func toGeminiParts(messages []Message) []genai.Part {
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	return parts
}

func toGeminiTools(tools []ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(t.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGeminiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{Type: genai.TypeObject}
	if props, ok := schema["properties"].(map[string]any); ok {
		properties := make(map[string]*genai.Schema, len(props))
		for key, val := range props {
			if propMap, ok := val.(map[string]any); ok {
				p := &genai.Schema{}
				if typeStr, ok := propMap["type"].(string); ok {
					p.Type = geminiType(typeStr)
				}
				if desc, ok := propMap["description"].(string); ok {
					p.Description = desc
				}
				properties[key] = p
			}
		}
		out.Properties = properties
	}
	if required, ok := schema["required"].([]string); ok {
		out.Required = required
	}
	return out
}

func geminiType(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func fromGeminiResponse(resp *genai.GenerateContentResponse) ChatOut {
	var out ChatOut
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, ToolCall{Name: p.Name, Input: p.Args})
		}
	}
	return out
}

// GeminiCallable returns a dag.Callable that sends args["messages"]
// ([]Message) and optional args["tools"] ([]ToolSpec) to Gemini's
// GenerateContent API and returns a ChatOut.
func GeminiCallable(apiKey, modelName string) dag.Callable {
	m := NewGeminiModel(apiKey, modelName)
	return func(ctx context.Context, args map[string]any) (any, error) {
		return m.Chat(ctx, messagesArg(args), toolsArg(args))
	}
}
