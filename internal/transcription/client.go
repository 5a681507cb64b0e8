package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DecodeOptions enumerates every decoding parameter sent to the engine.
// The defaults give deterministic greedy decoding with no cross-segment
// context, so a segment's transcript never depends on its neighbors.
type DecodeOptions struct {
	Language                  string  `yaml:"language"`
	Task                      string  `yaml:"task"`
	Prompt                    string  `yaml:"prompt"`
	Temperature               float32 `yaml:"temperature"`
	ConditionOnPrevious       bool    `yaml:"condition_on_previous"`
	CompressionRatioThreshold float32 `yaml:"compression_ratio_threshold"`
	NoSpeechThreshold         float32 `yaml:"no_speech_threshold"`
}

// DefaultDecodeOptions returns the deterministic decoding defaults.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		Language:                  "en",
		Task:                      "transcribe",
		Prompt:                    "Speak naturally.",
		Temperature:               0,
		ConditionOnPrevious:       false,
		CompressionRatioThreshold: 1.5,
		NoSpeechThreshold:         0.6,
	}
}

// Config contains transcription client configuration.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Decode   DecodeOptions
}

// ClientStats represents client statistics.
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// Client is an HTTP client for a whisper-style transcription endpoint.
// Failed requests are not retried: the sweeper treats a failed segment as
// permanently lost, so retrying here would only delay the sweep tick.
type Client struct {
	config     Config
	httpClient *http.Client

	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// response is the engine's reply; only the text is consumed.
type response struct {
	Text string `json:"text"`
}

// NewClient creates a transcription client.
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Transcribe uploads the audio file at path and returns the recognized
// text. The caller's context bounds the request; the client's own timeout
// applies as a ceiling.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	startTime := time.Now()
	c.mu.Lock()
	c.totalRequests++
	c.mu.Unlock()

	text, err := c.doRequest(ctx, path)
	if err != nil {
		c.mu.Lock()
		c.failedRequests++
		c.mu.Unlock()
		return "", err
	}

	c.mu.Lock()
	c.successRequests++
	if c.avgResponseTime == 0 {
		c.avgResponseTime = time.Since(startTime)
	} else {
		c.avgResponseTime = (c.avgResponseTime + time.Since(startTime)) / 2
	}
	c.mu.Unlock()

	return text, nil
}

// doRequest performs a single HTTP request to the transcription endpoint.
func (c *Client) doRequest(ctx context.Context, path string) (string, error) {
	audioData, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read audio file: %w", err)
	}

	body, contentType, err := c.createMultipartRequest(filepath.Base(path), audioData)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var r response
	if err := json.Unmarshal(respBody, &r); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return r.Text, nil
}

// createMultipartRequest builds the multipart/form-data body with the audio
// file and all decoding parameters as explicit fields.
func (c *Client) createMultipartRequest(filename string, audioData []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(audioData); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	opts := c.config.Decode
	fields := map[string]string{
		"language":                    opts.Language,
		"task":                        opts.Task,
		"prompt":                      opts.Prompt,
		"temperature":                 fmt.Sprintf("%.2f", opts.Temperature),
		"condition_on_previous_text":  fmt.Sprintf("%t", opts.ConditionOnPrevious),
		"compression_ratio_threshold": fmt.Sprintf("%.2f", opts.CompressionRatioThreshold),
		"no_speech_threshold":         fmt.Sprintf("%.2f", opts.NoSpeechThreshold),
		"response_format":             "json",
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// Stats returns current client statistics.
func (c *Client) Stats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
	}
}
