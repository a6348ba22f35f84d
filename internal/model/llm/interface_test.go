package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionCallParseArguments(t *testing.T) {
	fc := FunctionCall{Name: "execute_sql_query", Arguments: `{"query":"SELECT 1","limit":5}`}
	args, err := fc.ParseArguments()
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", args["query"])
	assert.Equal(t, float64(5), args["limit"])

	empty := FunctionCall{Name: "noop"}
	args, err = empty.ParseArguments()
	require.NoError(t, err)
	assert.Empty(t, args)

	bad := FunctionCall{Name: "broken", Arguments: `{"query":`}
	_, err = bad.ParseArguments()
	assert.Error(t, err)
}

func TestChatResponseHasToolCalls(t *testing.T) {
	var nilResp *ChatResponse
	assert.False(t, nilResp.HasToolCalls())

	resp := &ChatResponse{Message: Message{Role: "assistant", Content: "done"}}
	assert.False(t, resp.HasToolCalls())

	resp.Message.ToolCalls = []ToolCall{{ID: "call_1", Type: "function"}}
	assert.True(t, resp.HasToolCalls())
}

type stubClient struct {
	resp *ChatResponse
}

func (s *stubClient) Chat(ctx context.Context, messages []Message, options GenerateOptions) (*ChatResponse, error) {
	return s.resp, nil
}

func (s *stubClient) ChatWithTools(ctx context.Context, messages []Message, tools []ToolDefinition, options GenerateOptions) (*ChatResponse, error) {
	return s.resp, nil
}

func (s *stubClient) Model() string    { return "stub-model" }
func (s *stubClient) Provider() string { return "stub" }

func TestRateLimitedClientPassthrough(t *testing.T) {
	inner := &stubClient{resp: &ChatResponse{Message: Message{Role: "assistant", Content: "ok"}}}
	c := NewRateLimitedClient(inner, nil)

	resp, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	assert.Equal(t, "stub-model", c.Model())
}

func TestRateLimiterConcurrency(t *testing.T) {
	limiter := NewLLMRateLimiter(map[string]LLMLimitConfig{
		"stub": {MaxConcurrent: 1},
	}, nil)

	ctx := context.Background()
	require.NoError(t, limiter.Wait(ctx, "stub", 10))

	stats := limiter.GetStats("stub")
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats["current_concurrent"])

	limiter.Release("stub")
	stats = limiter.GetStats("stub")
	assert.Equal(t, 0, stats["current_concurrent"])
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, estimateTokens("", 0))
	assert.Equal(t, 10, estimateTokens("0123456789012345678901234567890123456789", 0))
	assert.Equal(t, 110, estimateTokens("0123456789012345678901234567890123456789", 100))
}
