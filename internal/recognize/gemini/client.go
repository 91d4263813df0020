// Package gemini implements the recognition client for the Gemini
// generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagelift/pagelift/internal/extract"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-1.5-pro"
	defaultTimeout = 5 * time.Minute

	// maxResponseBytes caps how much of a response body is read. Recognition
	// answers for a ten-page chunk are far below this.
	maxResponseBytes = 16 << 20
)

// Config holds client settings.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client submits chunk payloads to the generateContent endpoint. Each call
// authenticates with the credential carried by the request, so one client
// serves every slot of the pool.
type Client struct {
	baseURL string
	model   string
	httpc   *http.Client
	logger  *zap.Logger
}

// New creates a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Recognize submits one chunk and returns the service's declared completion
// status plus the raw structured payload. A returned error means the call
// itself failed; service refusals and malformed payloads come back in the
// response for the caller to classify.
func (c *Client) Recognize(ctx context.Context, req extract.RecognizeRequest) (extract.RecognizeResponse, error) {
	start := time.Now()

	body := generateRequest{
		Contents: []requestContent{{
			Parts: []requestPart{
				{Text: req.Instruction},
				{InlineData: &inlineData{MIMEType: req.MIMEType, Data: req.Payload}},
			},
		}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   req.Schema,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return extract.RecognizeResponse{}, fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return extract.RecognizeResponse{}, fmt.Errorf("build request: %w", err)
	}
	q := httpReq.URL.Query()
	q.Set("key", req.Credential)
	httpReq.URL.RawQuery = q.Encode()
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return extract.RecognizeResponse{}, fmt.Errorf("recognition call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return extract.RecognizeResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return extract.RecognizeResponse{}, fmt.Errorf("recognition call returned HTTP %d: %s", resp.StatusCode, snippet(data))
	}

	var decoded generateResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return extract.RecognizeResponse{}, fmt.Errorf("decode response envelope: %w", err)
	}

	status, text := decoded.result()
	c.logger.Debug("recognition call finished",
		zap.String("model", c.model),
		zap.String("status", status),
		zap.Duration("duration", time.Since(start)),
	)
	return extract.RecognizeResponse{
		Status:   status,
		Body:     []byte(text),
		Duration: time.Since(start),
	}, nil
}

type generateRequest struct {
	Contents         []requestContent  `json:"contents"`
	GenerationConfig *generationConfig `json:"generation_config,omitempty"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

// inlineData carries the chunk payload. Data marshals as base64, which is
// what the endpoint expects.
type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

type generationConfig struct {
	ResponseMIMEType string         `json:"response_mime_type,omitempty"`
	ResponseSchema   map[string]any `json:"response_schema,omitempty"`
}

type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback"`
}

type candidate struct {
	Content      *candidateContent `json:"content"`
	FinishReason string            `json:"finishReason"`
}

type candidateContent struct {
	Parts []candidatePart `json:"parts"`
}

type candidatePart struct {
	Text string `json:"text"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

// result flattens the envelope into (status, text). An empty candidate list
// surfaces the block reason, or "EMPTY" when none is given, so the caller
// still sees a non-normal status.
func (r generateResponse) result() (string, string) {
	if len(r.Candidates) == 0 {
		if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
			return r.PromptFeedback.BlockReason, ""
		}
		return "EMPTY", ""
	}
	cand := r.Candidates[0]
	var b strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			b.WriteString(part.Text)
		}
	}
	return cand.FinishReason, b.String()
}

func snippet(data []byte) string {
	const max = 200
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
