// Package llm wraps the Anthropic SDK behind the small completion
// surface the engine needs: one-shot completions for decomposition and
// reranking, streamed completions for answer synthesis.
package llm

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/resilience"
)

// Completer is the model-call surface used across the engine.
type Completer interface {
	// Complete sends one user prompt and returns the model's text.
	Complete(ctx context.Context, req Request) (string, error)

	// CompleteStream streams the model's text, invoking onDelta for each
	// text fragment as it arrives, and returns the full accumulated text.
	// A non-nil error from onDelta aborts the stream.
	CompleteStream(ctx context.Context, req Request, onDelta func(delta string) error) (string, error)
}

// Request is a single completion request.
type Request struct {
	// System is the system prompt. Empty means none.
	System string

	// Prompt is the user message.
	Prompt string

	// MaxTokens caps the response length. Zero means the client default.
	MaxTokens int64

	// Temperature overrides the sampling temperature when non-nil.
	Temperature *float64
}

// Client implements Completer using the official anthropic-sdk-go.
type Client struct {
	client           sdk.Client
	model            string
	defaultMaxTokens int64
}

// Option configures a Client.
type Option func(*Client)

// WithMaxTokens sets the default response cap applied when a request
// leaves MaxTokens unset.
func WithMaxTokens(n int64) Option {
	return func(c *Client) { c.defaultMaxTokens = n }
}

// NewClient creates a completion client for the given model.
func NewClient(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
		model:            model,
		defaultMaxTokens: 4096,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	msg, err := c.client.Messages.New(ctx, c.toParams(req))
	if err != nil {
		return "", classify(eris.Wrap(err, "llm: create message"), err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	logUsage(c.model, msg.Usage)
	return text, nil
}

func (c *Client) CompleteStream(ctx context.Context, req Request, onDelta func(delta string) error) (string, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.toParams(req))

	var msg sdk.Message
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return "", eris.Wrap(err, "llm: accumulate stream event")
		}

		switch delta := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			if delta.Delta.Text == "" {
				continue
			}
			if err := onDelta(delta.Delta.Text); err != nil {
				_ = stream.Close()
				return "", eris.Wrap(err, "llm: deliver stream delta")
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", classify(eris.Wrap(err, "llm: stream message"), err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	logUsage(c.model, msg.Usage)
	return text, nil
}

func (c *Client) toParams(req Request) sdk.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	return params
}

// classify tags provider-side failures so the retry layer can tell
// transient conditions from permanent ones.
func classify(wrapped, cause error) error {
	var apiErr *sdk.Error
	if !eris.As(cause, &apiErr) {
		return wrapped
	}
	if apiErr.StatusCode == 429 {
		return resilience.NewRateLimitedError(wrapped, 0)
	}
	if resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(wrapped, apiErr.StatusCode)
	}
	return wrapped
}

func logUsage(model string, usage sdk.Usage) {
	zap.L().Debug("model usage",
		zap.String("model", model),
		zap.Int64("input_tokens", usage.InputTokens),
		zap.Int64("output_tokens", usage.OutputTokens),
	)
}
