package restructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Client talks to an OpenAI-compatible API for both transcription and
// structuring.
type Client struct {
	api                *openai.Client
	transcriptionModel string
	structuringModel   string
}

// ClientConfig holds the connection settings for Client.
type ClientConfig struct {
	BaseURL            string
	APIKey             string
	TranscriptionModel string
	StructuringModel   string
}

// NewClient creates a Client. A nil httpClient selects http.DefaultClient;
// deadlines come from the request context.
func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = httpClient
	return &Client{
		api:                openai.NewClientWithConfig(oc),
		transcriptionModel: cfg.TranscriptionModel,
		structuringModel:   cfg.StructuringModel,
	}
}

// Transcribe uploads audio under a file name whose extension matches
// mimeType.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcriptionModel,
		FilePath: "recording" + extensionFor(mimeType),
		Reader:   bytes.NewReader(audio),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("restructure: transcribe: %w", err)
	}
	return resp.Text, nil
}

// Restructure sends text with Prompt and returns the first choice verbatim.
func (c *Client) Restructure(ctx context.Context, text string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.structuringModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: Prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("restructure: structure: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("restructure: structure: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func extensionFor(mimeType string) string {
	base, _, _ := mime.ParseMediaType(mimeType)
	switch base {
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a", "audio/aac":
		return ".m4a"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	}
	return ".webm"
}
