package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultClaudeEndpoint = "https://api.anthropic.com/v1/messages"
	defaultClaudeModel    = "claude-sonnet-4-5"
	anthropicVersion      = "2023-06-01"

	claudeStopRefusal = "refusal"
)

// ClaudeProvider calls Anthropic's Messages API.
type ClaudeProvider struct {
	cfg       Config
	transport transport
}

var _ Provider = (*ClaudeProvider)(nil)

// NewClaude creates a Claude adapter.
func NewClaude(cfg Config) (*ClaudeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s api key is required", ErrInvalidConfiguration, Claude)
	}
	cfg = cfg.withDefaults(defaultClaudeEndpoint, defaultClaudeModel)
	return &ClaudeProvider{
		cfg:       cfg,
		transport: newTransport(Claude, cfg.timeout()),
	}, nil
}

type claudeSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeBlock struct {
	Type   string        `json:"type"`
	Text   string        `json:"text,omitempty"`
	Source *claudeSource `json:"source,omitempty"`
}

type claudeMessage struct {
	Role    string        `json:"role"`
	Content []claudeBlock `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Classify implements Provider.
func (c *ClaudeProvider) Classify(ctx context.Context, req Request) (string, error) {
	blocks := make([]claudeBlock, 0, 2)
	if req.Image != nil {
		blocks = append(blocks, claudeBlock{Type: "image", Source: &claudeSource{
			Type:      "base64",
			MediaType: req.Image.MIMEType,
			Data:      encodeImage(req.Image),
		}})
	}
	blocks = append(blocks, claudeBlock{Type: "text", Text: req.Task})

	payload := claudeRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.temperatureFor(req),
		System:      req.System,
		Messages:    []claudeMessage{{Role: "user", Content: blocks}},
	}

	header := http.Header{}
	header.Set("x-api-key", c.cfg.APIKey)
	header.Set("anthropic-version", anthropicVersion)

	var resp claudeResponse
	if err := c.transport.post(ctx, c.cfg.Endpoint, header, payload, &resp); err != nil {
		return "", err
	}

	if resp.StopReason == claudeStopRefusal {
		return "", wrap(Claude, ErrContentRejected, resp.StopReason)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", wrap(Claude, ErrEmptyResponse, "")
	}
	return sb.String(), nil
}
