// Package llamacpp talks to a llama.cpp server through its OpenAI-compatible
// chat completions endpoint.
package llamacpp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/menta2k/toolbox/pkg/client"
)

// DefaultURL is where llama-server listens by default
const DefaultURL = "http://localhost:8080"

type Client struct {
	api         *openai.Client
	Temperature float32
	MaxTokens   int
}

var _ client.VisionClient = (*Client)(nil)

// NewClient creates a client for serverURL; httpClient may be nil.
func NewClient(serverURL string, httpClient *http.Client) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("invalid llama.cpp URL: %q", serverURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}

	base := strings.TrimSuffix(serverURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	// llama-server ignores the key
	cfg := openai.DefaultConfig("no-key")
	cfg.BaseURL = base
	cfg.HTTPClient = httpClient

	return &Client{
		api:         openai.NewClientWithConfig(cfg),
		Temperature: 0.2,
		MaxTokens:   512,
	}, nil
}

func (c *Client) Name() string { return client.BackendLlamaCpp }

// Complete sends the prompt with the image inlined as a data URL
func (c *Client) Complete(ctx context.Context, model, prompt string, image []byte) (string, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailAuto},
					},
				},
			},
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llama.cpp chat error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("empty response from llama.cpp")
	}
	return resp.Choices[0].Message.Content, nil
}
