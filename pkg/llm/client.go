// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chatvault-go/internal/config"
)

// ErrStreamTruncated 表示上游在发送 [DONE] 之前关闭了流。
var ErrStreamTruncated = errors.New("llm: stream ended without [DONE]")

// Client defines the interface for an LLM client.
type Client interface {
	// Generate 以单次请求返回完整回复。
	Generate(ctx context.Context, messages []Message) (string, error)
	// GenerateStream 以流式请求返回增量回复。调用方读完或放弃后必须 Close。
	GenerateStream(ctx context.Context, messages []Message) (Stream, error)
}

// Stream 是一次流式回复。Recv 按上游顺序返回非空增量，结束时返回 io.EOF。
// 中途失败时返回错误，已经返回的增量不受影响。
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new OpenAI-compatible chat completions client.
func NewClient(cfg config.LLMConfig) Client {
	return NewClientWithHTTP(cfg, &http.Client{})
}

// NewClientWithHTTP 使用指定的 http.Client 创建客户端。
func NewClientWithHTTP(cfg config.LLMConfig, httpClient *http.Client) Client {
	return &chatClient{
		cfg:    cfg,
		client: httpClient,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *chatClient) buildRequest(messages []Message, stream bool) chatRequest {
	all := make([]Message, 0, len(messages)+1)
	if c.cfg.Prompt.System != "" {
		all = append(all, Message{Role: "system", Content: c.cfg.Prompt.System})
	}
	all = append(all, messages...)

	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: all,
		Stream:   stream,
	}
	// 从全局配置注入（若非零值）
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		reqBody.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		reqBody.TopP = &p
	}
	if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		reqBody.MaxTokens = &m
	}
	return reqBody
}

func (c *chatClient) do(ctx context.Context, body chatRequest) (*http.Response, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}
	return resp, nil
}

// Generate calls the chat completions API without streaming.
func (c *chatClient) Generate(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.do(ctx, c.buildRequest(messages, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("chat api error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat api returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// GenerateStream calls the chat completions API and returns the SSE stream.
func (c *chatClient) GenerateStream(ctx context.Context, messages []Message) (Stream, error) {
	resp, err := c.do(ctx, c.buildRequest(messages, true))
	if err != nil {
		return nil, err
	}
	return &sseStream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
}

func (s *sseStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) {
				return "", ErrStreamTruncated
			}
			return "", fmt.Errorf("failed to read from stream: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, "data:") {
			// 空行、注释与 event: 行
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("chat api stream error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
