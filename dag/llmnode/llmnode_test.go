package llmnode

import (
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestMessagesArg_TypeAssertionMismatchYieldsNil(t *testing.T) {
	if got := messagesArg(map[string]any{"messages": "not a slice"}); got != nil {
		t.Errorf("expected nil on type mismatch, got %v", got)
	}
	want := []Message{{Role: RoleUser, Content: "hi"}}
	if got := messagesArg(map[string]any{"messages": want}); len(got) != 1 || got[0].Content != "hi" {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestToolsArg_MissingKeyYieldsNil(t *testing.T) {
	if got := toolsArg(map[string]any{}); got != nil {
		t.Errorf("expected nil when tools key absent, got %v", got)
	}
}

func TestExtractSystem_CombinesMultipleSystemMessages(t *testing.T) {
	system, rest := extractSystem([]Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleSystem, Content: "never apologize"},
	})

	if system != "be terse\n\nnever apologize" {
		t.Errorf("unexpected combined system prompt: %q", system)
	}
	if len(rest) != 1 || rest[0].Content != "hello" {
		t.Errorf("expected only the user message left in rest, got %v", rest)
	}
}

func TestToToolInput_NormalizesShapes(t *testing.T) {
	if got := toToolInput(map[string]any{"a": 1}); got["a"] != 1 {
		t.Errorf("expected passthrough map, got %v", got)
	}
	if got := toToolInput(nil); got != nil {
		t.Errorf("expected nil for nil input, got %v", got)
	}
	got := toToolInput("raw-string")
	if got == nil || got["_raw"] != "raw-string" {
		t.Errorf("expected wrapped _raw fallback, got %v", got)
	}
}

func TestToAnthropicMessages_OnePerInputMessage(t *testing.T) {
	out := toAnthropicMessages([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
}

func TestIsTransient(t *testing.T) {
	cases := map[string]bool{
		"connection timeout":         true,
		"503 Service Unavailable":    true,
		"rate limit exceeded":        true,
		"invalid api key":            false,
		"model not found":            false,
	}
	for msg, want := range cases {
		if got := isTransient(errors.New(msg)); got != want {
			t.Errorf("isTransient(%q) = %v, want %v", msg, got, want)
		}
	}
}

func TestToGeminiParts_SkipsEmptyContent(t *testing.T) {
	parts := toGeminiParts([]Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: ""},
		{Role: RoleUser, Content: "world"},
	})
	if len(parts) != 2 {
		t.Fatalf("expected 2 non-empty parts, got %d", len(parts))
	}
	if parts[0].(genai.Text) != "hello" || parts[1].(genai.Text) != "world" {
		t.Errorf("unexpected parts: %v", parts)
	}
}

func TestGeminiType_MapsJSONSchemaTypes(t *testing.T) {
	cases := map[string]genai.Type{
		"string":  genai.TypeString,
		"number":  genai.TypeNumber,
		"integer": genai.TypeInteger,
		"boolean": genai.TypeBoolean,
		"array":   genai.TypeArray,
		"object":  genai.TypeObject,
		"bogus":   genai.TypeUnspecified,
	}
	for in, want := range cases {
		if got := geminiType(in); got != want {
			t.Errorf("geminiType(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestToGeminiSchema_ConvertsPropertiesAndRequired(t *testing.T) {
	schema := toGeminiSchema(map[string]any{
		"properties": map[string]any{
			"city": map[string]any{"type": "string", "description": "city name"},
		},
		"required": []string{"city"},
	})
	if schema.Type != genai.TypeObject {
		t.Errorf("expected object schema type, got %v", schema.Type)
	}
	prop, ok := schema.Properties["city"]
	if !ok {
		t.Fatal("expected city property to be present")
	}
	if prop.Type != genai.TypeString || prop.Description != "city name" {
		t.Errorf("unexpected city property: %+v", prop)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "city" {
		t.Errorf("unexpected required list: %v", schema.Required)
	}
}

func TestToGeminiSchema_NilSchemaYieldsNil(t *testing.T) {
	if got := toGeminiSchema(nil); got != nil {
		t.Errorf("expected nil schema, got %v", got)
	}
}

func TestFromGeminiResponse_CombinesTextAndToolCalls(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []genai.Part{
						genai.Text("part one"),
						genai.Text("part two"),
						genai.FunctionCall{Name: "lookup", Args: map[string]any{"q": "weather"}},
					},
				},
			},
		},
	}

	out := fromGeminiResponse(resp)
	if out.Text != "part one\npart two" {
		t.Errorf("unexpected combined text: %q", out.Text)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "lookup" {
		t.Errorf("unexpected tool calls: %v", out.ToolCalls)
	}
}

func TestFromGeminiResponse_NoCandidates(t *testing.T) {
	out := fromGeminiResponse(&genai.GenerateContentResponse{})
	if out.Text != "" || out.ToolCalls != nil {
		t.Errorf("expected zero-value ChatOut, got %+v", out)
	}
}
