package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/lectoria/backend/internal/models"
)

// sequenceClient replays a fixed list of outcomes, then repeats the last.
type sequenceClient struct {
	responses []*LLMResponse
	errs      []error
	calls     int
}

func (c *sequenceClient) Generate(ctx context.Context, system, user string, temperature float64, maxTokens int) (*LLMResponse, error) {
	i := c.calls
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	c.calls++
	return c.responses[i], c.errs[i]
}

func okResponse(content string) *LLMResponse {
	return &LLMResponse{Content: content, FinishReason: "end_turn", PromptTokens: 100, OutputTokens: 50}
}

func TestInvokeSucceedsFirstAttempt(t *testing.T) {
	client := &sequenceClient{
		responses: []*LLMResponse{okResponse(`{"title":"A"}`)},
		errs:      []error{nil},
	}
	inv := NewInvokerWithClient(client, "test-model")

	raw, usage, err := inv.Invoke(context.Background(), "sys", "user", InvokeOptions{MaxRetries: 2})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if string(raw) != `{"title":"A"}` {
		t.Errorf("raw = %s", raw)
	}
	if usage.TotalTokens != 150 {
		t.Errorf("total tokens = %d, want derived 150", usage.TotalTokens)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1", client.calls)
	}
}

func TestInvokeRetriesTransportErrors(t *testing.T) {
	client := &sequenceClient{
		responses: []*LLMResponse{nil, nil, okResponse(`{"ok":true}`)},
		errs:      []error{errors.New("connection reset"), errors.New("connection reset"), nil},
	}
	inv := NewInvokerWithClient(client, "test-model")

	_, _, err := inv.Invoke(context.Background(), "sys", "user", InvokeOptions{MaxRetries: 2})
	if err != nil {
		t.Fatalf("Invoke error after recovery: %v", err)
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want 3", client.calls)
	}
}

func TestInvokeExhaustsRetryBudget(t *testing.T) {
	client := &sequenceClient{
		responses: []*LLMResponse{nil},
		errs:      []error{errors.New("boom")},
	}
	inv := NewInvokerWithClient(client, "test-model")

	_, _, err := inv.Invoke(context.Background(), "sys", "user", InvokeOptions{MaxRetries: 2})
	if err == nil {
		t.Fatal("expected error")
	}
	pe, ok := err.(*models.PipelineError)
	if !ok || pe.Code != models.CodeGenerationFailed {
		t.Fatalf("err = %v, want GENERATION_FAILED pipeline error", err)
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want maxRetries+1 = 3", client.calls)
	}
}

func TestInvokeMissingKeyFailsImmediately(t *testing.T) {
	client := &sequenceClient{
		responses: []*LLMResponse{okResponse(`{}`)},
		errs:      []error{nil},
	}
	inv := &Invoker{llm: client, model: "test-model", hasKey: false}

	_, _, err := inv.Invoke(context.Background(), "sys", "user", InvokeOptions{MaxRetries: 2})
	pe, ok := err.(*models.PipelineError)
	if !ok || pe.Code != models.CodeNoAPIKey {
		t.Fatalf("err = %v, want NO_API_KEY", err)
	}
	if client.calls != 0 {
		t.Errorf("calls = %d, missing key must not reach the model", client.calls)
	}
}

func TestInvokeStripsCodeFences(t *testing.T) {
	client := &sequenceClient{
		responses: []*LLMResponse{okResponse("```json\n{\"title\":\"Fenced\"}\n```")},
		errs:      []error{nil},
	}
	inv := NewInvokerWithClient(client, "test-model")

	raw, _, err := inv.Invoke(context.Background(), "sys", "user", InvokeOptions{})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if string(raw) != `{"title":"Fenced"}` {
		t.Errorf("raw = %s", raw)
	}
}

func TestInvokeRetriesNonObjectOutput(t *testing.T) {
	client := &sequenceClient{
		responses: []*LLMResponse{okResponse(`[1,2,3]`), okResponse(`{"fixed":true}`)},
		errs:      []error{nil, nil},
	}
	inv := NewInvokerWithClient(client, "test-model")

	raw, _, err := inv.Invoke(context.Background(), "sys", "user", InvokeOptions{MaxRetries: 1})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if string(raw) != `{"fixed":true}` {
		t.Errorf("raw = %s", raw)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
}

func TestInvokeRetriesEmptyContent(t *testing.T) {
	client := &sequenceClient{
		responses: []*LLMResponse{
			{Content: "   ", FinishReason: "end_turn"},
			okResponse(`{"ok":true}`),
		},
		errs: []error{nil, nil},
	}
	inv := NewInvokerWithClient(client, "test-model")

	_, _, err := inv.Invoke(context.Background(), "sys", "user", InvokeOptions{MaxRetries: 1})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
}

func TestNormalizeUsage(t *testing.T) {
	tests := []struct {
		name string
		resp LLMResponse
		want Usage
	}{
		{
			"negative counts clamp to zero",
			LLMResponse{PromptTokens: -5, OutputTokens: 40},
			Usage{PromptTokens: 0, CompletionTokens: 40, TotalTokens: 40},
		},
		{
			"total derived when absent",
			LLMResponse{PromptTokens: 100, OutputTokens: 50},
			Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
		},
		{
			"reported total preserved",
			LLMResponse{PromptTokens: 100, OutputTokens: 50, TotalTokens: 160},
			Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 160},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeUsage(&tt.resp); got != tt.want {
				t.Errorf("normalizeUsage = %+v, want %+v", got, tt.want)
			}
		})
	}
}
