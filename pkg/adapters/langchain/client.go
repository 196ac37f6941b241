// Package langchain adapts langchaingo chat models to the inference port.
// Every stage gets its own model binding (provider, model name, primary or
// fallback) so the planner can run on a stronger model than the executor.
package langchain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/aretw0/roam/pkg/domain"
	"github.com/aretw0/roam/pkg/ports"
)

// ModelConfig selects one chat model.
type ModelConfig struct {
	Provider string `yaml:"provider"` // "openai" or "ollama"
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// StageModels binds a stage to a primary and an optional fallback model.
type StageModels struct {
	Primary  ModelConfig `yaml:"primary"`
	Fallback ModelConfig `yaml:"fallback,omitempty"`
}

type binding struct {
	primary  llms.Model
	fallback llms.Model
}

// Client implements the inference port on top of langchaingo.
type Client struct {
	bindings map[string]binding
	defaults binding
	logger   *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a client from per-stage model configs. The "default" entry
// serves every stage without an explicit binding.
func New(stages map[string]StageModels, opts ...Option) (*Client, error) {
	c := &Client{
		bindings: make(map[string]binding, len(stages)),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for stage, cfg := range stages {
		b, err := buildBinding(cfg)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage, err)
		}
		if stage == "default" {
			c.defaults = b
			continue
		}
		c.bindings[stage] = b
	}
	if c.defaults.primary == nil && len(c.bindings) == 0 {
		return nil, fmt.Errorf("no model bindings configured")
	}
	return c, nil
}

func buildBinding(cfg StageModels) (binding, error) {
	primary, err := buildModel(cfg.Primary)
	if err != nil {
		return binding{}, fmt.Errorf("primary: %w", err)
	}
	b := binding{primary: primary, fallback: primary}
	if cfg.Fallback.Model != "" {
		fb, err := buildModel(cfg.Fallback)
		if err != nil {
			return binding{}, fmt.Errorf("fallback: %w", err)
		}
		b.fallback = fb
	}
	return b, nil
}

func buildModel(cfg ModelConfig) (llms.Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		return openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func (c *Client) model(stage string, fallback bool) (llms.Model, error) {
	b, ok := c.bindings[stage]
	if !ok {
		b = c.defaults
	}
	m := b.primary
	if fallback {
		m = b.fallback
	}
	if m == nil {
		return nil, fmt.Errorf("no model bound for stage %q", stage)
	}
	return m, nil
}

// Structured invokes the stage's model in JSON mode and decodes the response
// into out.
func (c *Client) Structured(ctx context.Context, stage string, fallback bool, msgs []domain.Message, out any) error {
	model, err := c.model(stage, fallback)
	if err != nil {
		return err
	}

	resp, err := model.GenerateContent(ctx, toContent(msgs), llms.WithJSONMode())
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("stage %s: model returned no choices", stage)
	}

	raw := stripFences(resp.Choices[0].Content)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("stage %s: decoding structured response: %w", stage, err)
	}
	return nil
}

// ToolCalls invokes the stage's model with the action catalogue bound and
// converts the chosen calls back into the domain message shape.
func (c *Client) ToolCalls(ctx context.Context, stage string, fallback bool, msgs []domain.Message, tools []ports.ToolSpec) (*domain.Message, error) {
	model, err := c.model(stage, fallback)
	if err != nil {
		return nil, err
	}

	llmTools := make([]llms.Tool, 0, len(tools))
	for _, t := range tools {
		llmTools = append(llmTools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := model.GenerateContent(ctx, toContent(msgs), llms.WithTools(llmTools))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("stage %s: model returned no choices", stage)
	}

	choice := resp.Choices[0]
	msg := domain.AssistantMessage(choice.Content)
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		args := map[string]any{}
		if tc.FunctionCall.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
				c.logger.Warn("undecodable tool arguments", "stage", stage, "tool", tc.FunctionCall.Name, "err", err)
			}
		}
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:   tc.ID,
			Name: tc.FunctionCall.Name,
			Args: args,
		})
	}
	return &msg, nil
}

// toContent converts domain messages into langchaingo message contents.
func toContent(msgs []domain.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case domain.RoleUser:
			if m.ImageB64 != "" {
				var parts []llms.ContentPart
				if m.Content != "" {
					parts = append(parts, llms.TextPart(m.Content))
				}
				parts = append(parts, llms.ImageURLPart("data:image/png;base64,"+m.ImageB64))
				out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})
				continue
			}
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case domain.RoleAssistant:
			var parts []llms.ContentPart
			if m.Content != "" {
				parts = append(parts, llms.TextPart(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Args)
				parts = append(parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case domain.RoleTool:
			if m.Result == nil {
				continue
			}
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: m.Result.CallID,
						Name:       m.Result.Name,
						Content:    m.Result.Content,
					},
				},
			})
		}
	}
	return out
}

// stripFences removes a markdown code fence around a JSON payload; some
// models wrap JSON-mode output anyway.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
