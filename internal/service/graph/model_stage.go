package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"echogate/internal/config"
)

// Generator is the subset of an eino chat model the model stage needs.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Model asks a chat model to answer the user input; its reply becomes the
// bot output.
func Model(gen Generator) Node {
	return NodeFunc(func(ctx context.Context, state State) (State, error) {
		reply, err := gen.Generate(ctx, []*schema.Message{schema.UserMessage(state.UserInput)})
		if err != nil {
			return state, fmt.Errorf("generate reply: %w", err)
		}
		if reply == nil {
			return state, errors.New("model returned no message")
		}
		return state.WithOutput(reply.Content), nil
	})
}

const claudeMaxTokens = 3000

// NewChatModel builds the eino chat model for a configured provider. An empty
// modelName falls back to the provider's configured model.
func NewChatModel(ctx context.Context, provider string, pc config.ProviderConfig, modelName string) (model.ToolCallingChatModel, error) {
	name := modelName
	if name == "" {
		name = pc.Model
	}
	if name == "" {
		return nil, fmt.Errorf("provider %s: no model configured", provider)
	}

	switch provider {
	case "openai":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: name})
	case "gemini":
		cc := &genai.ClientConfig{APIKey: pc.APIKey, Backend: genai.BackendGeminiAPI}
		if pc.BaseURL != "" {
			cc.HTTPOptions.BaseURL = pc.BaseURL
		}
		client, err := genai.NewClient(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{Client: client, Model: name})
	case "claude":
		cfg := &claude.Config{APIKey: pc.APIKey, Model: name, MaxTokens: claudeMaxTokens}
		if pc.BaseURL != "" {
			cfg.BaseURL = &pc.BaseURL
		}
		return claude.NewChatModel(ctx, cfg)
	}
	return nil, fmt.Errorf("unsupported provider: %s", provider)
}
