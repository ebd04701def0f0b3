package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"nanobot/internal/domain"
	"nanobot/internal/metrics"
)

const defaultHTTPTimeout = 120 * time.Second

// OpenAICompat talks to any OpenAI-compatible chat-completions endpoint
// (GLM, DeepSeek, Qwen, Moonshot, OpenRouter, ...). It is constructed from a
// registry Spec plus the credential resolved from the spec's env key.
type OpenAICompat struct {
	name    string
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type Config struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
	Logger  *slog.Logger
}

func NewOpenAICompat(cfg Config) *OpenAICompat {
	return &OpenAICompat{
		name:    cfg.Name,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  newHTTPClient(defaultHTTPTimeout),
		logger:  cfg.Logger,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

func (p *OpenAICompat) Name() string { return p.name }

// Wire shapes for the OpenAI-compatible chat-completions API.

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireToolCallFunc `json:"function"`
}

type wireToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (p *OpenAICompat) buildRequest(messages []domain.ChatMessage, tools []domain.ToolDefinition, stream bool) wireRequest {
	msgs := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			callType := tc.Type
			if callType == "" {
				callType = "function"
			}
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: callType,
				Function: wireToolCallFunc{
					Name:      tc.FunctionName,
					Arguments: tc.Arguments,
				},
			})
		}
		msgs = append(msgs, wm)
	}

	req := wireRequest{Model: p.model, Messages: msgs, Stream: stream}
	for _, t := range tools {
		req.Tools = append(req.Tools, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return req
}

func (p *OpenAICompat) post(ctx context.Context, body wireRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned %d: %s", p.name, resp.StatusCode, string(respBody))
	}
	return resp, nil
}

// Chat performs one completion call and returns the final content or the
// requested tool invocations.
func (p *OpenAICompat) Chat(ctx context.Context, messages []domain.ChatMessage, tools []domain.ToolDefinition) (*domain.ChatResponse, error) {
	metrics.LLMRequestsTotal.Inc()
	start := time.Now()

	resp, err := p.post(ctx, p.buildRequest(messages, tools, false))
	if err != nil {
		metrics.LLMErrorsTotal.Inc()
		return nil, err
	}
	defer resp.Body.Close()
	defer metrics.LLMLatency.Observe(time.Since(start).Seconds())

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		metrics.LLMErrorsTotal.Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return &domain.ChatResponse{}, nil
	}

	choice := wire.Choices[0]
	out := &domain.ChatResponse{Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		callType := tc.Type
		if callType == "" {
			callType = "function"
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:           tc.ID,
			Type:         callType,
			FunctionName: tc.Function.Name,
			Arguments:    tc.Function.Arguments,
		})
	}
	return out, nil
}

// ChatStream performs a streaming completion, sending content fragments to
// out as they arrive. The out channel is not closed by this method.
func (p *OpenAICompat) ChatStream(ctx context.Context, messages []domain.ChatMessage, tools []domain.ToolDefinition, out chan<- string) error {
	metrics.LLMRequestsTotal.Inc()

	resp, err := p.post(ctx, p.buildRequest(messages, tools, true))
	if err != nil {
		metrics.LLMErrorsTotal.Inc()
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			p.logger.Debug("skipping malformed stream chunk", "err", err)
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			select {
			case out <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return nil
}
