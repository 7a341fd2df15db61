package oracle

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicOracle implements Oracle for Anthropic Claude.
type AnthropicOracle struct {
	client anthropic.Client
	cfg    Config
}

// NewAnthropicOracle creates a new Anthropic-backed oracle.
func NewAnthropicOracle(cfg Config) *AnthropicOracle {
	return &AnthropicOracle{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
	}
}

// Provider returns the provider name.
func (o *AnthropicOracle) Provider() string {
	return "anthropic"
}

// Complete makes an API call to Anthropic Claude.
func (o *AnthropicOracle) Complete(ctx context.Context, messages []Message) (string, error) {
	anthropicMessages := []anthropic.MessageParam{}
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			// System messages are a top-level request field.
			systemPrompt = msg.Content
		case RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case RoleAssistant:
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(o.cfg.Model),
		Messages:  anthropicMessages,
		MaxTokens: int64(o.cfg.MaxTokens),
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	if o.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(o.cfg.Temperature)
	}

	response, err := o.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	content := ""
	for _, block := range response.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += text.Text
		}
	}

	return content, nil
}
