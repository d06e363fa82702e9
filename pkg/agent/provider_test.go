package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaioption "github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/finagent/pkg/session"
	"github.com/harun/finagent/pkg/toolexecutor"
)

func captureServer(t *testing.T, suffix, response string, captured *map[string]interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, suffix) {
			http.NotFound(w, r)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err == nil && captured != nil {
			_ = json.Unmarshal(body, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(server.Close)
	return server
}

func calculatorSpec() toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "calculator",
		Description: "Evaluate arithmetic",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"expression": map[string]interface{}{"type": "string"},
			},
			"required": []string{"expression"},
		},
	}
}

func conversationWithToolResult() []session.Message {
	return []session.Message{
		session.System("sys"),
		session.User("what is 1+1"),
		session.AssistantWithTools("", session.ToolCall{ID: "c1", Name: "calculator", Arguments: map[string]interface{}{"expression": "1+1"}}),
		session.ToolResult("c1", "2"),
	}
}

func TestNewProvider(t *testing.T) {
	t.Run("should require an api key", func(t *testing.T) {
		_, err := NewProvider(ProviderConfig{Provider: "openai"})
		assert.Error(t, err)
	})

	t.Run("should reject unknown providers", func(t *testing.T) {
		_, err := NewProvider(ProviderConfig{Provider: "gemini", APIKey: "k"})
		assert.Error(t, err)
	})

	t.Run("should build known providers", func(t *testing.T) {
		p, err := NewProvider(ProviderConfig{Provider: "openai", APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, "openai", p.Provider())

		p, err = NewProvider(ProviderConfig{Provider: "anthropic", APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, "anthropic", p.Provider())
	})
}

func TestOpenAIProvider(t *testing.T) {
	const response = `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-4o-mini",
		"choices": [{
			"index": 0,
			"finish_reason": "tool_calls",
			"message": {
				"role": "assistant",
				"content": null,
				"tool_calls": [{
					"id": "call_9",
					"type": "function",
					"function": {"name": "calculator", "arguments": "{\"expression\":\"2*3\"}"}
				}]
			}
		}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
	}`

	var captured map[string]interface{}
	server := captureServer(t, "/chat/completions", response, &captured)
	provider := NewOpenAIProvider("test-key", server.URL+"/v1/", openaioption.WithMaxRetries(0))

	resp, err := provider.Call(context.Background(), LLMRequest{
		Model:     "gpt-4o-mini",
		Messages:  conversationWithToolResult(),
		Tools:     []toolexecutor.ToolSpec{calculatorSpec()},
		MaxTokens: 100,
	})
	require.NoError(t, err)

	t.Run("should parse tool calls", func(t *testing.T) {
		require.Len(t, resp.ToolCalls, 1)
		assert.Equal(t, "call_9", resp.ToolCalls[0].ID)
		assert.Equal(t, "calculator", resp.ToolCalls[0].Name)
		assert.Equal(t, "2*3", resp.ToolCalls[0].Arguments["expression"])
		assert.Equal(t, 12, resp.Usage.InputTokens)
	})

	t.Run("should send the full conversation", func(t *testing.T) {
		messages, ok := captured["messages"].([]interface{})
		require.True(t, ok)
		require.Len(t, messages, 4)

		tool := messages[3].(map[string]interface{})
		assert.Equal(t, "tool", tool["role"])
		assert.Equal(t, "c1", tool["tool_call_id"])
		assert.Equal(t, "2", tool["content"])

		asst := messages[2].(map[string]interface{})
		assert.Equal(t, "assistant", asst["role"])
		assert.Len(t, asst["tool_calls"], 1)

		toolsSent, ok := captured["tools"].([]interface{})
		require.True(t, ok)
		assert.Len(t, toolsSent, 1)
	})

	t.Run("should surface http errors", func(t *testing.T) {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":{"message":"down","type":"server_error"}}`)
		}))
		defer failing.Close()

		p := NewOpenAIProvider("test-key", failing.URL+"/v1/", openaioption.WithMaxRetries(0))
		_, err := p.Call(context.Background(), LLMRequest{Model: "m", Messages: []session.Message{session.User("hi")}})
		assert.Error(t, err)
	})
}

func TestAnthropicProvider(t *testing.T) {
	const response = `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-test",
		"content": [
			{"type": "text", "text": "The total is 6"}
		],
		"stop_reason": "end_turn",
		"stop_sequence": null,
		"usage": {"input_tokens": 20, "output_tokens": 5}
	}`

	var captured map[string]interface{}
	server := captureServer(t, "/messages", response, &captured)
	provider := NewAnthropicProvider("test-key", server.URL+"/", anthropicoption.WithMaxRetries(0))

	resp, err := provider.Call(context.Background(), LLMRequest{
		Model:    "claude-test",
		Messages: conversationWithToolResult(),
		Tools:    []toolexecutor.ToolSpec{calculatorSpec()},
	})
	require.NoError(t, err)

	t.Run("should parse text content", func(t *testing.T) {
		assert.Equal(t, "The total is 6", resp.Content)
		assert.Empty(t, resp.ToolCalls)
		assert.Equal(t, 5, resp.Usage.OutputTokens)
	})

	t.Run("should move system messages out of the conversation", func(t *testing.T) {
		system, ok := captured["system"].([]interface{})
		require.True(t, ok)
		require.Len(t, system, 1)
		assert.Equal(t, "sys", system[0].(map[string]interface{})["text"])

		messages := captured["messages"].([]interface{})
		require.Len(t, messages, 3)
		assert.Equal(t, "user", messages[2].(map[string]interface{})["role"])
	})

	t.Run("should send tool results as tool_result blocks", func(t *testing.T) {
		messages := captured["messages"].([]interface{})
		content := messages[2].(map[string]interface{})["content"].([]interface{})
		require.Len(t, content, 1)
		block := content[0].(map[string]interface{})
		assert.Equal(t, "tool_result", block["type"])
		assert.Equal(t, "c1", block["tool_use_id"])
	})

	t.Run("should default max tokens", func(t *testing.T) {
		assert.EqualValues(t, anthropicDefaultMaxTokens, captured["max_tokens"])
	})
}
