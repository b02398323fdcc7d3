package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sawpanic/chartpulse/internal/config"
	"github.com/sawpanic/chartpulse/internal/errs"
	"github.com/sawpanic/chartpulse/internal/indicators"
)

const (
	APIKeyEnv = "DEEPSEEK_API_KEY"

	stageAnalyze    = "llm_analysis"
	maxReplyBytes   = 4 << 20
	breakerFailures = 3
	breakerReopen   = 60 * time.Second
)

// Analyzer produces narrative analysis text for a ticker and its snapshot.
type Analyzer interface {
	Analyze(ctx context.Context, ticker string, snap indicators.Snapshot) (string, error)
}

// DeepSeek talks to an OpenAI-compatible chat completions endpoint. The
// request carries a fixed analyst system role plus a user prompt embedding
// the indicator snapshot.
type DeepSeek struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewDeepSeek builds the client from config, reading the API key from the
// environment. A missing key surfaces on the first Analyze call, before any
// network traffic.
func NewDeepSeek(cfg config.LLMConfig) *DeepSeek {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com"
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.5
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = 120
	}

	settings := gobreaker.Settings{
		Name:    "deepseek",
		Timeout: breakerReopen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errs.IsKind(err, errs.AnalysisUnavailable)
		},
	}

	return &DeepSeek{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      os.Getenv(APIKeyEnv),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout()},
		breaker:     gobreaker.NewCircuitBreaker(settings),
	}
}

// Analyze requests one narrative report. Empty model output is a failure so
// a blank response can never poison the analysis cache.
func (d *DeepSeek) Analyze(ctx context.Context, ticker string, snap indicators.Snapshot) (string, error) {
	if d.apiKey == "" {
		return "", errs.New(errs.MissingCredentials, stageAnalyze, ticker, "%s is not set", APIKeyEnv)
	}

	payload, err := json.Marshal(chatRequest{
		Model: d.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(ticker, snap)},
		},
		MaxTokens:   d.maxTokens,
		Temperature: d.temperature,
	})
	if err != nil {
		return "", errs.Wrap(errs.AnalysisUnavailable, stageAnalyze, ticker, err)
	}

	result, err := d.breaker.Execute(func() (interface{}, error) {
		return d.complete(ctx, ticker, payload)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", errs.Wrap(errs.AnalysisUnavailable, stageAnalyze, ticker, err)
		}
		return "", err
	}

	text := strings.TrimSpace(result.(string))
	if text == "" {
		return "", errs.New(errs.AnalysisEmpty, stageAnalyze, ticker, "model returned an empty analysis")
	}
	return text, nil
}

func (d *DeepSeek) complete(ctx context.Context, ticker string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", errs.Wrap(errs.AnalysisUnavailable, stageAnalyze, ticker, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.AnalysisUnavailable, stageAnalyze, ticker, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", errs.Wrap(errs.AnalysisUnavailable, stageAnalyze, ticker, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return "", errs.New(errs.MissingCredentials, stageAnalyze, ticker,
			"model endpoint rejected credentials (status %d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", errs.New(errs.AnalysisUnavailable, stageAnalyze, ticker,
			"model endpoint status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", errs.Wrap(errs.AnalysisUnavailable, stageAnalyze, ticker, err)
	}
	if parsed.Error != nil {
		return "", errs.New(errs.AnalysisUnavailable, stageAnalyze, ticker,
			"model error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}
