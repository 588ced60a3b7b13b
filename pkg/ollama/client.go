package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/entity-extractor/pkg/client"
	"github.com/menta2k/entity-extractor/pkg/types"
)

// DefaultURL is where a local Ollama server listens by default.
const DefaultURL = "http://localhost:11434"

// Client wraps the Ollama API client
type Client struct {
	client     *api.Client
	httpClient *http.Client
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL string, timeout time.Duration) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Drop any path like /api/chat, the SDK adds its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		client:     api.NewClient(baseURL, httpClient),
		httpClient: httpClient,
	}, nil
}

func (c *Client) Name() string { return "ollama" }

// Complete runs a non-streaming chat with the image attached as raw bytes.
// Ollama cannot fetch remote images, so URL references are downloaded here.
func (c *Client) Complete(ctx context.Context, opts client.Options, prompt string, img types.ImageRef) (string, error) {
	opts = opts.WithDefaults()

	imgBytes, err := c.imageBytes(ctx, img)
	if err != nil {
		return "", err
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: opts.Model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream: &streamFalse,
		Options: map[string]any{
			"temperature": opts.Temperature,
			"num_predict": opts.MaxTokens,
		},
	}

	var responseContent strings.Builder
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}

	if responseContent.Len() == 0 {
		return "", fmt.Errorf("empty response from ollama")
	}
	return responseContent.String(), nil
}

func (c *Client) imageBytes(ctx context.Context, img types.ImageRef) ([]byte, error) {
	if img.Inline {
		return decodeDataURI(img.URL)
	}
	return c.download(ctx, img.URL)
}

// decodeDataURI extracts the payload of a data:<mime>;base64,<data> URI
func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.Index(uri, ",")
	if !strings.HasPrefix(uri, "data:") || comma < 0 || !strings.HasSuffix(uri[:comma], ";base64") {
		return nil, fmt.Errorf("not a base64 data URI")
	}
	b, err := base64.StdEncoding.DecodeString(uri[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return b, nil
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Entity-Extractor/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", ct)
	}

	return io.ReadAll(resp.Body)
}
