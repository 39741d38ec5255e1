// Package genai holds the clients for text generation, audio
// transcription, image generation and competence analysis. All text,
// audio and image calls go through an OpenAI-compatible API so the
// backend can be swapped by configuration alone.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Completer generates text from a prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}

// Transcriber converts an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// ImageGenerator renders an image from a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// CompetenceAnalyzer maps a transcript to ESCO competences.
type CompetenceAnalyzer interface {
	Analyze(ctx context.Context, text string) ([]byte, error)
}

// Options configures a Client.
type Options struct {
	BaseURL            string
	APIKeyEnv          string
	Model              string
	ImageModel         string
	TranscriptionModel string
	MaxTokens          int
	Temperature        float64
	Timeout            time.Duration
}

// Client talks to an OpenAI-compatible API. It implements Completer,
// Transcriber and ImageGenerator.
type Client struct {
	opts   Options
	apiKey string
	client *http.Client
}

// NewClient creates a Client. The API key is read from the environment
// at construction time.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return &Client{
		opts:   opts,
		apiKey: os.Getenv(opts.APIKeyEnv),
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// IsConfigured checks if the API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// Complete sends a chat completion request and returns the response
// text. An empty system prompt is omitted from the message list.
func (c *Client) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	if !c.IsConfigured() {
		return "", fmt.Errorf("API key %s not set", c.opts.APIKeyEnv)
	}
	if maxTokens <= 0 {
		maxTokens = c.opts.MaxTokens
	}

	var messages []map[string]string
	if system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	body := map[string]any{
		"model":       c.opts.Model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": c.opts.Temperature,
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, "/chat/completions", body, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}
	return result.Choices[0].Message.Content, nil
}

// Transcribe uploads an audio file and returns the transcript text.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if !c.IsConfigured() {
		return "", fmt.Errorf("API key %s not set", c.opts.APIKeyEnv)
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("opening audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("reading audio file: %w", err)
	}
	if err := mw.WriteField("model", c.opts.TranscriptionModel); err != nil {
		return "", fmt.Errorf("writing form field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.opts.BaseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding transcription: %w", err)
	}
	return result.Text, nil
}

// GenerateImage renders an image from a prompt and returns the raw
// image bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("API key %s not set", c.opts.APIKeyEnv)
	}

	body := map[string]any{
		"model":           c.opts.ImageModel,
		"prompt":          prompt,
		"n":               1,
		"response_format": "b64_json",
	}

	var result struct {
		Data []struct {
			B64 string `json:"b64_json"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/images/generations", body, &result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("no image in response")
	}
	img, err := base64.StdEncoding.DecodeString(result.Data[0].B64)
	if err != nil {
		return nil, fmt.Errorf("decoding image data: %w", err)
	}
	return img, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.opts.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// CompetenceClient posts a transcript to an external competence
// extraction service and returns the raw JSON document it produces.
type CompetenceClient struct {
	URL    string
	client *http.Client
}

// NewCompetenceClient creates a CompetenceClient.
func NewCompetenceClient(url string, timeout time.Duration) *CompetenceClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &CompetenceClient{URL: url, client: &http.Client{Timeout: timeout}}
}

// Analyze sends the text to the competence service. The response is
// stored verbatim; the site layer interprets it.
func (c *CompetenceClient) Analyze(ctx context.Context, text string) ([]byte, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("competence service URL not configured")
	}

	data, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.URL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("competence service error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("competence service returned %d: %s", resp.StatusCode, string(respBody))
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("competence service returned invalid JSON")
	}
	return out, nil
}
