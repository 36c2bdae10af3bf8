package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

// ErrEmptyResponse is returned when a model answers with no text.
var ErrEmptyResponse = errors.New("model returned empty response")

// Options tune a single generation.
type Options struct {
	Temperature     float64
	MaxOutputTokens int
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// Client wraps the Anthropic API as a Generator.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an Anthropic-backed generator with the given API key and model.
func NewClient(apiKey, model string, opts ...option.RequestOption) *Client {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	opts = withDefaults(opts)
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(opts.MaxOutputTokens),
		Temperature: anthropic.Float(opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func withDefaults(opts Options) Options {
	if opts.Temperature == 0 {
		opts.Temperature = 0.8
	}
	if opts.MaxOutputTokens == 0 {
		opts.MaxOutputTokens = 256
	}
	return opts
}

// limited throttles calls to an underlying Generator.
type limited struct {
	next    Generator
	limiter *rate.Limiter
}

// Limit wraps g so that at most perSecond calls start each second.
// A non-positive perSecond returns g unchanged.
func Limit(g Generator, perSecond float64, burst int) Generator {
	if perSecond <= 0 || g == nil {
		return g
	}
	if burst < 1 {
		burst = 1
	}
	return &limited{next: g, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *limited) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return l.next.Generate(ctx, prompt, opts)
}
