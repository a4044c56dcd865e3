package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// Client wraps the Ollama API client with the narrow surface the chat core
// needs: streaming and one-shot generation, model listing, and a probe.
type Client struct {
	client  *api.Client
	baseURL string
}

func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	client := api.NewClient(parsedURL, http.DefaultClient)

	return &Client{
		client:  client,
		baseURL: baseURL,
	}, nil
}

// GenerateStream sends a prompt and streams fragments back through fn until
// the server reports done or ctx is cancelled. Cancelling ctx tears down the
// underlying connection, so the server stops generating.
func (c *Client) GenerateStream(ctx context.Context, model, prompt string, images [][]byte, fn func(chunk string) error) error {
	req := &api.GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: func(b bool) *bool { return &b }(true),
	}
	for _, img := range images {
		req.Images = append(req.Images, api.ImageData(img))
	}

	return c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		if fn != nil {
			return fn(resp.Response)
		}
		return nil
	})
}

// Generate sends a prompt and returns the complete response in one shot.
// Used for summarization, where incremental display has no value.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	req := &api.GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: func(b bool) *bool { return &b }(false),
	}

	var out string
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out += resp.Response
		return nil
	})
	if err != nil {
		return "", err
	}

	return out, nil
}

type ModelInfo struct {
	Name string
	Size int64
}

func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]ModelInfo, len(resp.Models))
	for i, model := range resp.Models {
		models[i] = ModelInfo{
			Name: model.Name,
			Size: model.Size,
		}
	}

	return models, nil
}

// Ping checks that the Ollama server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return c.client.Heartbeat(ctx)
}
