// Package llmnode wraps chat-completion calls from three LLM SDKs as
// plain dag.Callable values, so a graph node can call out to a model
// the same way it calls any other function. Prompt templating, tool
// execution, and conversation management stay the caller's job — a
// node built with one of these constructors is deliberately as thin
// as Dkr/StringDk/JsonDk, the other ordinary wrapper functions a
// caller writes around dag.Callable.
package llmnode

import "context"

// Message is one turn of a chat conversation.
type Message struct {
	Role    string
	Content string
}

// Standard roles, matching the conventions of every provider wrapped
// here.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOut is the normalized result of a chat completion call.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolSpec describes a tool a model may call.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolCall is a model's request to invoke a tool.
type ToolCall struct {
	Name  string
	Input map[string]any
}

// ChatModel is the common shape all three provider adapters satisfy.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

func messagesArg(args map[string]any) []Message {
	v, _ := args["messages"].([]Message)
	return v
}

func toolsArg(args map[string]any) []ToolSpec {
	v, _ := args["tools"].([]ToolSpec)
	return v
}
