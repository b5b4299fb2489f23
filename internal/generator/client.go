package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/lectoria/backend/internal/models"
)

// LLMClient is the interface all generator backends satisfy.
type LLMClient interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string, temperature float64, maxTokens int) (*LLMResponse, error)
}

// LLMResponse holds the raw response content, the provider finish
// reason, and token usage as reported (possibly zero or negative).
type LLMResponse struct {
	Content      string
	FinishReason string
	PromptTokens int
	OutputTokens int
	TotalTokens  int
}

// Usage is the normalized token accounting returned to callers.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// InvokeOptions bounds one structured-output invocation.
type InvokeOptions struct {
	MaxRetries  int
	Temperature float64
	MaxTokens   int
}

// Invoker drives the bounded retry loop around an LLMClient and
// guarantees callers a well-formed JSON object or a typed failure.
// Domain validation (word counts, safety) is the rubric's job, not ours.
type Invoker struct {
	llm    LLMClient
	model  string
	hasKey bool
}

func NewInvoker() *Invoker {
	var llm LLMClient
	model := "mock"
	hasKey := true

	if os.Getenv("USE_CLI_GENERATOR") == "true" {
		cliPath := os.Getenv("CLAUDE_CLI_PATH")
		if cliPath == "" {
			cliPath = "claude"
		}
		llm = NewCLIClient(cliPath)
		model = "claude-cli"
		log.Println("Invoker using Claude CLI (local plan)")
	} else if os.Getenv("MOCK_GENERATOR") == "true" {
		llm = NewMockClient()
		log.Println("Invoker using mock data")
	} else {
		model = os.Getenv("ANTHROPIC_MODEL")
		if model == "" {
			model = "claude-sonnet-4-5-20250929"
		}
		hasKey = os.Getenv("ANTHROPIC_API_KEY") != ""
		llm = NewAPIClient(model)
		log.Println("Invoker using Anthropic API:", model)
	}

	return &Invoker{llm: llm, model: model, hasKey: hasKey}
}

// NewInvokerWithClient is used by tests and by callers that already
// resolved a backend.
func NewInvokerWithClient(llm LLMClient, model string) *Invoker {
	return &Invoker{llm: llm, model: model, hasKey: true}
}

func (inv *Invoker) ModelName() string {
	return inv.model
}

// Ready reports whether credentials were resolved at construction.
func (inv *Invoker) Ready() bool {
	return inv.hasKey
}

// Invoke requests a single structured JSON object from the model,
// retrying up to opts.MaxRetries+1 attempts. On success it returns the
// raw object and normalized usage; on exhaustion it returns a
// GENERATION_FAILED pipeline error carrying the last attempt's failure.
func (inv *Invoker) Invoke(ctx context.Context, systemPrompt, userPrompt string, opts InvokeOptions) (json.RawMessage, Usage, error) {
	if !inv.hasKey {
		// Configuration, not transient — no retries.
		return nil, Usage{}, models.NewPipelineError(models.CodeNoAPIKey, "", "no model API credentials configured")
	}

	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}

	attempts := opts.MaxRetries + 1
	var lastErr string

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := inv.llm.Generate(ctx, systemPrompt, userPrompt, opts.Temperature, opts.MaxTokens)
		if err != nil {
			lastErr = err.Error()
			log.Printf("WARN: [invoker] attempt %d/%d transport error: %v", attempt, attempts, err)
			continue
		}

		if strings.TrimSpace(resp.Content) == "" {
			lastErr = fmt.Sprintf("empty content (finish=%s prompt_tokens=%d output_tokens=%d)",
				resp.FinishReason, resp.PromptTokens, resp.OutputTokens)
			log.Printf("WARN: [invoker] attempt %d/%d no extractable text: %s", attempt, attempts, lastErr)
			continue
		}

		cleaned := stripCodeFences(resp.Content)
		var obj json.RawMessage
		if parseErr := json.Unmarshal([]byte(cleaned), &obj); parseErr != nil || !isJSONObject(obj) {
			kind := "invalid"
			if resp.FinishReason == "max_tokens" {
				kind = "truncated"
			}
			lastErr = fmt.Sprintf("%s structured output (finish=%s len=%d)", kind, resp.FinishReason, len(cleaned))
			log.Printf("WARN: [invoker] attempt %d/%d %s: %s", attempt, attempts, lastErr, boundedPreview(cleaned, 160))
			continue
		}

		return obj, normalizeUsage(resp), nil
	}

	return nil, Usage{}, models.NewPipelineError(models.CodeGenerationFailed, "",
		fmt.Sprintf("model returned no usable output after %d attempts: %s", attempts, lastErr))
}

func normalizeUsage(resp *LLMResponse) Usage {
	u := Usage{
		PromptTokens:     max(0, resp.PromptTokens),
		CompletionTokens: max(0, resp.OutputTokens),
	}
	if resp.TotalTokens > 0 {
		u.TotalTokens = resp.TotalTokens
	} else {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func isJSONObject(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "{")
}

func boundedPreview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n] + "…"
	}
	return s
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSpace(s)
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}

// ── APIClient — Anthropic SDK (Production) ─────────────────

type APIClient struct {
	client *anthropic.Client
	model  string
}

func NewAPIClient(model string) *APIClient {
	client := anthropic.NewClient(
		option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
	)
	return &APIClient{client: &client, model: model}
}

func (c *APIClient) Generate(ctx context.Context, systemPrompt string, userPrompt string, temperature float64, maxTokens int) (*LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Temperature: param.NewOpt(temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API: %w", err)
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}

	return &LLMResponse{
		Content:      responseText,
		FinishReason: string(message.StopReason),
		PromptTokens: int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}
