package workflow

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/brainscroll/paper-cli/internal/config"
	"github.com/brainscroll/paper-cli/internal/resilience"
	"github.com/brainscroll/paper-cli/pkg/anthropic"
)

// Generator produces text for a single prompt. The workflow depends on this
// rather than the API client directly so stages can be tested with canned
// responses.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// generationTemperature matches the sampling temperature used for all
// enrichment prompts.
const generationTemperature = 0.7

// AnthropicGenerator is the production Generator backed by the Anthropic API.
type AnthropicGenerator struct {
	client anthropic.Client
	cfg    config.AnthropicConfig
	usage  anthropic.TokenUsage
}

// NewAnthropicGenerator wraps an Anthropic client as a Generator. When
// cfg.Retry is set, transient API failures are retried with backoff before
// a stage sees the error.
func NewAnthropicGenerator(client anthropic.Client, cfg config.AnthropicConfig) *AnthropicGenerator {
	return &AnthropicGenerator{client: client, cfg: cfg}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	temp := generationTemperature
	req := anthropic.MessageRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	}

	call := func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return g.client.CreateMessage(ctx, req)
	}

	var resp *anthropic.MessageResponse
	var err error
	if g.cfg.Retry {
		retryCfg := resilience.DefaultRetryConfig()
		if g.cfg.MaxAttempts > 0 {
			retryCfg.MaxAttempts = g.cfg.MaxAttempts
		}
		retryCfg.OnRetry = resilience.RetryLogger("anthropic", "generate")
		resp, err = resilience.DoVal(ctx, retryCfg, call)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		return "", eris.Wrap(err, "workflow: generate")
	}

	g.usage.Add(resp.Usage)
	return resp.Text(), nil
}

// Usage reports cumulative token consumption across all calls.
func (g *AnthropicGenerator) Usage() anthropic.TokenUsage {
	return g.usage
}
