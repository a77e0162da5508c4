package translate

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ChatCompleter is the subset of the openai chat completions service used here
type ChatCompleter interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIBackend translates through an OpenAI-compatible chat endpoint
type OpenAIBackend struct {
	completions ChatCompleter
}

// NewOpenAIClient builds a client, pointing it at baseURL when set
func NewOpenAIClient(apiKey, baseURL string, extra ...option.RequestOption) openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return openai.NewClient(append(opts, extra...)...)
}

// NewOpenAIBackend wraps a chat completions service
func NewOpenAIBackend(completions ChatCompleter) *OpenAIBackend {
	return &OpenAIBackend{completions: completions}
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Complete(ctx context.Context, model, instruction, text string) (string, error) {
	resp, err := b.completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instruction),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
