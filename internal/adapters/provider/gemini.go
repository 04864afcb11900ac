package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel    = "gemini-2.5-flash"

	geminiFinishSafety = "SAFETY"
)

// GeminiProvider calls Google's generateContent API.
type GeminiProvider struct {
	cfg       Config
	transport transport
}

var _ Provider = (*GeminiProvider)(nil)

// NewGemini creates a Gemini adapter.
func NewGemini(cfg Config) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s api key is required", ErrInvalidConfiguration, Gemini)
	}
	cfg = cfg.withDefaults(defaultGeminiEndpoint, defaultGeminiModel)
	return &GeminiProvider{
		cfg:       cfg,
		transport: newTransport(Gemini, cfg.timeout()),
	}, nil
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string  `json:"responseMimeType"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Classify implements Provider.
func (g *GeminiProvider) Classify(ctx context.Context, req Request) (string, error) {
	parts := make([]geminiPart, 0, 2)
	if req.Image != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MIMEType: req.Image.MIMEType,
			Data:     encodeImage(req.Image),
		}})
	}
	parts = append(parts, geminiPart{Text: req.Task})

	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      g.cfg.temperatureFor(req),
			MaxOutputTokens:  g.cfg.MaxTokens,
			ResponseMIMEType: "application/json",
		},
	}
	if req.System != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimSuffix(g.cfg.Endpoint, "/"), g.cfg.Model)
	header := http.Header{}
	header.Set("x-goog-api-key", g.cfg.APIKey)

	var resp geminiResponse
	if err := g.transport.post(ctx, url, header, payload, &resp); err != nil {
		return "", err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", wrap(Gemini, ErrContentRejected, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", wrap(Gemini, ErrEmptyResponse, "no candidates")
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == geminiFinishSafety {
		return "", wrap(Gemini, ErrContentRejected, cand.FinishReason)
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", wrap(Gemini, ErrEmptyResponse, "")
	}
	return sb.String(), nil
}
