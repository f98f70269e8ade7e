package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ChatCompletionsClient is the subset of the OpenAI SDK the adapter uses. It
// is satisfied by the SDK's chat completion service; tests pass fakes.
type ChatCompletionsClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIClient adapts the Chat Completions API to Client.
type OpenAIClient struct {
	chat      ChatCompletionsClient
	maxTokens int
}

// NewOpenAIClient wraps an OpenAI chat completions client.
func NewOpenAIClient(chat ChatCompletionsClient, defaultMaxTokens int) (*OpenAIClient, error) {
	if chat == nil {
		return nil, errors.New("openai chat client is required")
	}
	if defaultMaxTokens <= 0 {
		defaultMaxTokens = 1024
	}
	return &OpenAIClient{chat: chat, maxTokens: defaultMaxTokens}, nil
}

// NewOpenAIClientFromAPIKey builds the adapter over the default HTTP client.
func NewOpenAIClientFromAPIKey(apiKey string, defaultMaxTokens int) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAIClient(&oc.Chat.Completions, defaultMaxTokens)
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if req.Model == "" {
		return nil, errors.New("openai: model identifier is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(req.Model),
		Messages:  messages,
		MaxTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response contained no choices")
	}
	return &CompletionResponse{
		Text:      resp.Choices[0].Message.Content,
		TokensIn:  int(resp.Usage.PromptTokens),
		TokensOut: int(resp.Usage.CompletionTokens),
	}, nil
}
