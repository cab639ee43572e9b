package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// openAIProvider talks to any OpenAI compatible endpoint; base_url selects
// the vendor (openai, openrouter, a local gateway).
type openAIProvider struct {
	client *openai.Client
	hasKey bool
}

func newOpenAIProvider(args interface{}) (*openAIProvider, error) {
	cfg := &providerConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	key := cfg.resolveKey()
	clientCfg := openai.DefaultConfig(key)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	return &openAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		hasKey: key != "",
	}, nil
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	if !p.hasKey {
		return "", ErrUnavailable
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: p.Name(), Err: errors.New("response has no choices")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *openAIProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if !p.hasKey {
		return nil, ErrUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &ProviderError{
			Provider: p.Name(),
			Err:      fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)),
		}
	}
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, item := range data {
		out[i] = item.Embedding
	}
	return out, nil
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: "openai", StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: "openai", StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return &ProviderError{Provider: "openai", Err: err}
}

func init() {
	Register("openai", func(args interface{}) (IGenerateProvider, error) {
		return newOpenAIProvider(args)
	})
	RegisterEmbed("openai", func(args interface{}) (IEmbedProvider, error) {
		return newOpenAIProvider(args)
	})
}
