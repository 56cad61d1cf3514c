package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/finsight-core-v1/server/internal/agent/model"
	errx "github.com/finsight-core-v1/server/internal/core/error"
	logx "github.com/finsight-core-v1/server/pkg/logger"
)

// Gateway is the workflow's only interface to the language model. Complete
// returns free text; CompleteStructured returns a JSON object decoded into
// out, or an explicit error when the model cannot be coerced into the shape.
type Gateway interface {
	Complete(ctx context.Context, messages []*schema.Message) (string, error)
	CompleteStructured(ctx context.Context, messages []*schema.Message, out any) error
}

// ChatModelGateway adapts an eino chat model into a Gateway. Every call gets
// a bounded timeout so a hung provider degrades into the caller's fallback
// path instead of stalling the whole turn.
type ChatModelGateway struct {
	chatModel einomodel.BaseChatModel
	modelName string
	timeout   time.Duration
}

// NewChatModelGateway wraps an already-constructed chat model.
func NewChatModelGateway(cm einomodel.BaseChatModel, modelName string, timeout time.Duration) *ChatModelGateway {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatModelGateway{chatModel: cm, modelName: modelName, timeout: timeout}
}

// NewGeminiGateway builds a Gemini-backed gateway from configuration.
func NewGeminiGateway(ctx context.Context, apiKey, baseURL string, cfg model.LLMConfig) (*ChatModelGateway, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		MaxTokens:   &cfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating chat model")
		return nil, fmt.Errorf("error creating chat model: %w", err)
	}

	timeout, err := time.ParseDuration(cfg.CallTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_CALL_TIMEOUT %q: %w", cfg.CallTimeout, err)
	}

	return NewChatModelGateway(cm, cfg.Model, timeout), nil
}

func (g *ChatModelGateway) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", errx.WrapLLM(err)
	}
	if out == nil {
		return "", fmt.Errorf("llm generate: nil message")
	}

	g.logUsage(out)
	return out.Content, nil
}

// CompleteStructured completes, then coerces the reply into out via strict
// JSON extraction. One repair round-trip is attempted when the first reply
// does not parse; after that the error is surfaced to the caller.
func (g *ChatModelGateway) CompleteStructured(ctx context.Context, messages []*schema.Message, out any) error {
	content, err := g.Complete(ctx, messages)
	if err != nil {
		return err
	}

	if derr := DecodeJSON(content, out); derr == nil {
		return nil
	} else {
		logx.Warn().Err(derr).Str("model", g.modelName).Msg("structured reply did not parse; requesting repair")
	}

	repair := append(append([]*schema.Message{}, messages...),
		schema.AssistantMessage(content, nil),
		schema.UserMessage("The previous reply was not a valid JSON object. Respond again with only the JSON object, no prose, no code fences, same fields."),
	)
	content, err = g.Complete(ctx, repair)
	if err != nil {
		return err
	}
	if derr := DecodeJSON(content, out); derr != nil {
		return fmt.Errorf("structured output did not parse after repair: %w", derr)
	}
	return nil
}

// logUsage logs token usage and USD cost when the provider reports them.
func (g *ChatModelGateway) logUsage(out *schema.Message) {
	if out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(g.modelName))
	logx.Debug().
		Str("model", g.modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}

var _ Gateway = (*ChatModelGateway)(nil)
