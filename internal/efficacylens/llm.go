package efficacylens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/revrost/go-openrouter"
	"go.uber.org/zap"
)

const systemPrompt = "You are a careful analyst of pharmaceutical clinical trial publications. Respond with strict JSON only."

const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
)

// LLMCaller is the only capability required from the analysis service:
// free-form text completion for a named model.
type LLMCaller interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

type CallerOptions struct {
	APIKey    string
	MaxTokens int64
	// Timeout and MaxRetries are applied by the transport, never by the pipeline.
	Timeout    time.Duration
	MaxRetries int
}

func NewCaller(provider string, opts CallerOptions) (LLMCaller, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%s api key not configured", provider)
	}
	switch provider {
	case "", ProviderAnthropic:
		return NewAnthropicCaller(opts), nil
	case ProviderOpenRouter:
		return NewOpenRouterCaller(opts.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicCaller struct {
	messages  AnthropicMessager
	maxTokens int64
}

func NewAnthropicCaller(opts CallerOptions) *AnthropicCaller {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	if opts.MaxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(opts.MaxRetries))
	}
	c := anthropic.NewClient(reqOpts...)
	return newAnthropicCallerWith(&c.Messages, opts.MaxTokens)
}

func newAnthropicCallerWith(messages AnthropicMessager, maxTokens int64) *AnthropicCaller {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &AnthropicCaller{messages: messages, maxTokens: maxTokens}
}

func (a *AnthropicCaller) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   a.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

type OpenRouterCaller struct {
	client *openrouter.Client
}

func NewOpenRouterCaller(apiKey string) *OpenRouterCaller {
	return &OpenRouterCaller{client: openrouter.NewClient(apiKey)}
}

func (o *OpenRouterCaller) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model: model,
		Messages: []openrouter.ChatCompletionMessage{
			{Role: openrouter.ChatMessageRoleSystem, Content: openrouter.Content{Text: systemPrompt}},
			{Role: openrouter.ChatMessageRoleUser, Content: openrouter.Content{Text: prompt}},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content.Text, nil
}

// StageExecutor performs exactly one service call per stage and turns the
// reply into a typed payload. It never retries.
type StageExecutor struct {
	caller LLMCaller
	model  string
	logger *zap.Logger
}

func NewStageExecutor(caller LLMCaller, model string, logger *zap.Logger) *StageExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageExecutor{caller: caller, model: model, logger: logger}
}

func (e *StageExecutor) Model() string { return e.model }

func (e *StageExecutor) Run(ctx context.Context, stage, prompt string, out any, check schemaCheck) ([]string, error) {
	started := time.Now()
	raw, err := e.caller.Generate(ctx, e.model, prompt)
	if err != nil {
		class := classifyTransportError(err)
		e.logger.Warn("analysis service call failed",
			zap.String("stage", stage), zap.String("class", string(class)), zap.Error(err))
		return nil, &ServiceCallError{Stage: stage, Class: class, Err: err}
	}
	e.logger.Debug("analysis service replied",
		zap.String("stage", stage),
		zap.String("model", e.model),
		zap.Int("prompt_chars", charCount(prompt)),
		zap.Int("reply_chars", charCount(raw)),
		zap.Duration("elapsed", time.Since(started)))

	warnings, err := DecodeReply(stage, raw, out, check)
	if err != nil {
		e.logger.Warn("could not recover structured reply", zap.String("stage", stage), zap.Error(err))
		return nil, err
	}
	return warnings, nil
}
