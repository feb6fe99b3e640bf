package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/loomworks/loom/types"
)

// OpenAIConfig configures an OpenAI-compatible chat endpoint. Most hosted
// and local runtimes (vLLM, Ollama, OpenRouter) speak this wire format.
type OpenAIConfig struct {
	// Name is the registry name, also matched against "name/model" ids.
	Name string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// BaseURL is the endpoint root, without the /chat/completions suffix.
	BaseURL string
	// Timeout bounds one completion round trip. Zero means 120s.
	Timeout time.Duration
}

// OpenAIProvider talks to an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
	log    *zap.Logger
}

// NewOpenAIProvider builds a provider over the configured endpoint.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger.With(zap.String("component", "llm"), zap.String("provider", cfg.Name)),
	}
}

func (p *OpenAIProvider) Name() string { return p.cfg.Name }

// Wire types for the chat completions endpoint.

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	Name       string       `json:"name,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
}

type oaToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
		// Arguments ride the wire as a JSON-encoded string.
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Parameters  any    `json:"parameters,omitempty"`
	} `json:"function"`
}

type oaRequest struct {
	Model          string      `json:"model"`
	Messages       []oaMessage `json:"messages"`
	Temperature    float64     `json:"temperature,omitempty"`
	MaxTokens      int         `json:"max_tokens,omitempty"`
	Tools          []oaTool    `json:"tools,omitempty"`
	ResponseFormat any         `json:"response_format,omitempty"`
}

type oaResponse struct {
	Choices []struct {
		Message      oaMessage `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Completion performs one chat round trip.
func (p *OpenAIProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body := oaRequest{
		Model:       StripProviderPrefix(req.Model),
		Messages:    toWireMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       toWireTools(req.Tools),
	}
	if req.ResponseSchema != nil {
		body.ResponseFormat = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "response",
				"schema": req.ResponseSchema,
			},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewFlowError(types.ErrProvider, "encoding completion request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewFlowError(types.ErrProvider, "building completion request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	started := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.FlowErrorf(types.ErrProvider, "%s unreachable", p.cfg.Name).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewFlowError(types.ErrProvider, "reading completion response").WithCause(err)
	}

	var decoded oaResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, types.FlowErrorf(types.ErrProvider, "%s sent malformed JSON", p.cfg.Name).WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("%s returned status %d", p.cfg.Name, resp.StatusCode)
		if decoded.Error != nil {
			msg = fmt.Sprintf("%s: %s", msg, decoded.Error.Message)
		}
		return nil, types.NewFlowError(types.ErrProvider, msg)
	}
	if len(decoded.Choices) == 0 {
		return nil, types.FlowErrorf(types.ErrProvider, "%s returned no choices", p.cfg.Name)
	}

	choice := decoded.Choices[0]
	p.log.Debug("completion finished",
		zap.String("model", body.Model),
		zap.String("finish_reason", choice.FinishReason),
		zap.Duration("elapsed", time.Since(started)),
	)

	return &ChatResponse{
		Message:      fromWireMessage(choice.Message),
		FinishReason: choice.FinishReason,
		PromptTokens: decoded.Usage.PromptTokens,
		OutputTokens: decoded.Usage.CompletionTokens,
	}, nil
}

func toWireMessages(msgs []types.Message) []oaMessage {
	out := make([]oaMessage, len(msgs))
	for i, m := range msgs {
		wm := oaMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, call := range m.ToolCalls {
			wc := oaToolCall{ID: call.ID, Type: "function"}
			wc.Function.Name = call.Name
			wc.Function.Arguments = string(call.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, wc)
		}
		out[i] = wm
	}
	return out
}

func toWireTools(tools map[string]any) []oaTool {
	var out []oaTool
	for name, schema := range tools {
		wt := oaTool{Type: "function"}
		wt.Function.Name = name
		if doc, ok := schema.(map[string]any); ok {
			if desc, ok := doc["description"].(string); ok {
				wt.Function.Description = desc
			}
			if params, ok := doc["parameters"]; ok {
				wt.Function.Parameters = params
			}
		}
		out = append(out, wt)
	}
	return out
}

func fromWireMessage(m oaMessage) types.Message {
	msg := types.NewMessage(types.Role(m.Role), m.Content)
	if len(m.ToolCalls) > 0 {
		calls := make([]types.ToolCall, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			calls[i] = types.ToolCall{ID: c.ID, Name: c.Function.Name, Arguments: json.RawMessage(c.Function.Arguments)}
		}
		msg = msg.WithToolCalls(calls)
	}
	return msg
}
