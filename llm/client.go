package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// scoringInstruction frames the model as a headline sentiment scorer
const scoringInstruction = "You score equity news headlines for short-term price impact. Use only the headlines given. Do not invent news. Answer with a single JSON object and nothing else."

// Scoring is deterministic and the reply is one small JSON object
const (
	scoringTemperature = 0
	scoringMaxTokens   = 120
	maxErrorBody       = 4096
)

// Client scores headline sentiment against an OpenAI-compatible
// chat completions endpoint
type Client struct {
	url    string
	apiKey string
	model  string
	http   *http.Client
}

// NewClient creates a sentiment client. Calls carry no client-side timeout;
// callers bound each one with a context.
func NewClient(endpoint, apiKey, model string) *Client {
	return &Client{
		url:    strings.TrimRight(endpoint, "/") + "/chat/completions",
		apiKey: apiKey,
		model:  model,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// APIError is a non-200 reply from the scoring endpoint
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sentiment API error %d: %s", e.StatusCode, e.Body)
}

type turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type replyFormat struct {
	Type string `json:"type"`
}

// scoreRequest is the chat completion body of one headline batch
type scoreRequest struct {
	Model          string       `json:"model"`
	Messages       []turn       `json:"messages"`
	Temperature    float64      `json:"temperature"`
	MaxTokens      int          `json:"max_tokens"`
	ResponseFormat *replyFormat `json:"response_format,omitempty"`
}

// scoreReply keeps only the first choice's text
type scoreReply struct {
	Choices []struct {
		Message turn `json:"message"`
	} `json:"choices"`
}

func (c *Client) newScoreRequest(ticker string, headlines []string) scoreRequest {
	return scoreRequest{
		Model: c.model,
		Messages: []turn{
			{Role: "system", Content: scoringInstruction},
			{Role: "user", Content: FormatHeadlinePrompt(ticker, headlines)},
		},
		Temperature:    scoringTemperature,
		MaxTokens:      scoringMaxTokens,
		ResponseFormat: &replyFormat{Type: "json_object"},
	}
}

// ScoreHeadlines asks the model for the same-day sentiment of ticker's recent
// headlines. No headlines is neutral and makes no call.
func (c *Client) ScoreHeadlines(ctx context.Context, ticker string, headlines []string) (Sentiment, error) {
	if len(headlines) == 0 {
		return Sentiment{}, nil
	}

	text, err := c.send(ctx, c.newScoreRequest(ticker, headlines))
	if err != nil {
		return Sentiment{}, fmt.Errorf("score %s headlines: %w", ticker, err)
	}
	return ParseSentiment(text)
}

// send posts one scoring request and returns the reply text
func (c *Client) send(ctx context.Context, body scoreRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var reply scoreReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode reply: %w", err)
	}
	if len(reply.Choices) == 0 {
		return "", fmt.Errorf("reply has no choices")
	}
	return reply.Choices[0].Message.Content, nil
}
