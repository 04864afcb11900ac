package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel    = "gpt-4o"

	openAIFinishContentFilter = "content_filter"
)

// OpenAIProvider calls the Chat Completions API.
type OpenAIProvider struct {
	cfg       Config
	transport transport
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAI creates an OpenAI adapter.
func NewOpenAI(cfg Config) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s api key is required", ErrInvalidConfiguration, OpenAI)
	}
	cfg = cfg.withDefaults(defaultOpenAIEndpoint, defaultOpenAIModel)
	return &OpenAIProvider{
		cfg:       cfg,
		transport: newTransport(OpenAI, cfg.timeout()),
	}, nil
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Classify implements Provider.
func (o *OpenAIProvider) Classify(ctx context.Context, req Request) (string, error) {
	messages := make([]openAIMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	if req.Image == nil {
		messages = append(messages, openAIMessage{Role: "user", Content: req.Task})
	} else {
		messages = append(messages, openAIMessage{Role: "user", Content: []openAIContentPart{
			{Type: "text", Text: req.Task},
			{Type: "image_url", ImageURL: &openAIImageURL{
				URL: "data:" + req.Image.MIMEType + ";base64," + encodeImage(req.Image),
			}},
		}})
	}

	payload := openAIRequest{
		Model:       o.cfg.Model,
		Messages:    messages,
		Temperature: o.cfg.temperatureFor(req),
		MaxTokens:   o.cfg.MaxTokens,
	}
	payload.ResponseFormat.Type = "json_object"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	var resp openAIResponse
	if err := o.transport.post(ctx, o.cfg.Endpoint, header, payload, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", wrap(OpenAI, ErrEmptyResponse, "no choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", wrap(OpenAI, ErrContentRejected, choice.Message.Refusal)
	}
	if choice.FinishReason == openAIFinishContentFilter {
		return "", wrap(OpenAI, ErrContentRejected, choice.FinishReason)
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", wrap(OpenAI, ErrEmptyResponse, "")
	}
	return choice.Message.Content, nil
}
