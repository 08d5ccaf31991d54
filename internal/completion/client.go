// Package completion talks to an OpenAI-compatible chat/completions endpoint.
// The client is stateless apart from its HTTP transport.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/DocChat/internal/logger"
	"github.com/dharsanguruparan/DocChat/internal/model"
)

// SummaryInputLimit is the number of characters of document text sent for
// summarization. Longer documents are cut, not rejected.
const SummaryInputLimit = 4000

const summaryInstruction = "You are an expert analyst. Provide a thorough yet concise summary of the " +
	"following document in about 200-250 words. Organize the summary into clear, " +
	"well-structured paragraphs covering the main points, key details and conclusions."

const chatInstruction = "You are a helpful assistant. The user is asking questions about a document. " +
	"This is the document's full text:\n\n---\n%s\n\n---\n\nAnswer the user's questions based on this document."

// Config for the client. The API key is injected at startup.
type Config struct {
	APIKey       string
	BaseURL      string
	SummaryModel string
	ChatModel    string
	Timeout      time.Duration
}

// Client issues summarization and chat requests.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Logger
}

// NewClient fills defaults for unset fields.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = "gpt-3.5-turbo"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With("component", "completion"),
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Summarize returns a summary of the first SummaryInputLimit characters of
// text.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	msgs := []message{
		{Role: "system", Content: summaryInstruction},
		{Role: "user", Content: Truncate(text, SummaryInputLimit)},
	}
	return c.complete(ctx, "summarize", c.cfg.SummaryModel, msgs)
}

// Converse answers prompt with the whole document as grounding context,
// replaying history in the order given.
func (c *Client) Converse(ctx context.Context, documentText string, history []model.ChatTurn, prompt string) (string, error) {
	msgs := make([]message, 0, len(history)+2)
	msgs = append(msgs, message{Role: "system", Content: fmt.Sprintf(chatInstruction, documentText)})
	for _, turn := range history {
		msgs = append(msgs, message{Role: turn.Role, Content: turn.Content})
	}
	msgs = append(msgs, message{Role: "user", Content: prompt})
	return c.complete(ctx, "converse", c.cfg.ChatModel, msgs)
}

func (c *Client) complete(ctx context.Context, op, modelName string, msgs []message) (string, error) {
	rid := uuid.NewString()
	start := time.Now()
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", &UpstreamError{Op: op, Detail: "completion API key is not configured"}
	}

	body, err := json.Marshal(chatRequest{Model: modelName, Messages: msgs})
	if err != nil {
		return "", &UpstreamError{Op: op, Detail: "encode request", Err: err}
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &UpstreamError{Op: op, Detail: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug("completion.request", "req_id", rid, "op", op, "model", modelName, "messages", len(msgs), "bytes", len(body))

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("completion.send_error", "req_id", rid, "op", op, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", &UpstreamError{Op: op, Detail: "request failed", Err: err}
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("completion.body_close_error", "req_id", rid, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UpstreamError{Op: op, StatusCode: resp.StatusCode, Detail: "read response", Err: err}
	}
	c.log.Info("completion.response", "req_id", rid, "op", op, "status", resp.StatusCode, "bytes", len(raw), "elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode/100 != 2 {
		return "", &UpstreamError{Op: op, StatusCode: resp.StatusCode, Detail: errorDetail(raw)}
	}
	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", &UpstreamError{Op: op, StatusCode: resp.StatusCode, Detail: "decode response", Err: err}
	}
	if len(cc.Choices) == 0 {
		return "", &UpstreamError{Op: op, StatusCode: resp.StatusCode, Detail: "no choices in response"}
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	if content == "" {
		return "", &UpstreamError{Op: op, StatusCode: resp.StatusCode, Detail: "empty completion"}
	}
	return content, nil
}

func errorDetail(raw []byte) string {
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	detail := strings.TrimSpace(string(raw))
	if detail == "" {
		return "empty error body"
	}
	return Truncate(detail, 300)
}

// Truncate returns the first n characters (runes) of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// UpstreamError reports any failure talking to the completion service.
type UpstreamError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString("completion service error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err came from the completion service.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
