package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	importapp "github.com/textile/backend/internal/application/import"
	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/domain/shared"
)

const systemPrompt = `You extract order line items from spreadsheet data given as CSV.
Identify the columns holding the style or item number, the description, the quantity and the unit price.
Reply with a JSON object of the form {"rows":[{"styleNo":"","description":"","quantity":null,"unitPrice":0}]}.
Use null for a missing quantity. Skip header, subtotal and blank rows. Do not invent rows.`

// OpenAIConfig configures the language-model classifier
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIClassifier asks a chat model to recover item rows
type OpenAIClassifier struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClassifier creates a classifier for the configured endpoint
func NewOpenAIClassifier(cfg OpenAIConfig, logger *zap.Logger) *OpenAIClassifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIClassifier{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger.Named("openai-classifier"),
	}
}

type completionRow struct {
	StyleNo     string          `json:"styleNo"`
	Description string          `json:"description"`
	Quantity    json.RawMessage `json:"quantity"`
	UnitPrice   json.RawMessage `json:"unitPrice"`
}

type completionBody struct {
	Rows []completionRow `json:"rows"`
}

// Classify sends text to the model. HTTP 429 maps to ErrRateLimited, 402 to
// ErrPaymentRequired and everything else to ErrClassificationFailed.
func (c *OpenAIClassifier) Classify(ctx context.Context, text string) ([]sales.ImportRow, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response choices", importapp.ErrClassificationFailed)
	}

	content := stripCodeFence(resp.Choices[0].Message.Content)
	var body completionBody
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		c.logger.Warn("Unparseable model response", zap.String("response", content), zap.Error(err))
		return nil, fmt.Errorf("%w: response is not JSON: %v", importapp.ErrClassificationFailed, err)
	}

	rows := make([]sales.ImportRow, 0, len(body.Rows))
	for i, r := range body.Rows {
		row, ok := r.toImportRow()
		if !ok {
			c.logger.Debug("Skipping model row", zap.Int("index", i), zap.String("style_no", r.StyleNo))
			continue
		}
		rows = append(rows, row)
	}
	c.logger.Info("Rows classified", zap.Int("rows", len(rows)), zap.Int("tokens", resp.Usage.TotalTokens))
	return rows, nil
}

func (r completionRow) toImportRow() (sales.ImportRow, bool) {
	style, desc := strings.TrimSpace(r.StyleNo), strings.TrimSpace(r.Description)
	if style == "" && desc == "" {
		return sales.ImportRow{}, false
	}
	price, err := parseAmount(rawString(r.UnitPrice))
	if err != nil {
		return sales.ImportRow{}, false
	}
	quantity, err := parseQuantity(rawString(r.Quantity))
	if err != nil {
		return sales.ImportRow{}, false
	}
	return sales.ImportRow{StyleNo: style, Description: desc, Quantity: quantity, UnitPrice: price}, true
}

// rawString unquotes a JSON string or returns a bare number; null is empty
func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func classifyError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case 0:
		// no response: the endpoint could not be reached
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("classification service: %w: %v", shared.ErrUnavailable, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", importapp.ErrRateLimited, err)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %v", importapp.ErrPaymentRequired, err)
	}
	return fmt.Errorf("%w: %v", importapp.ErrClassificationFailed, err)
}

var _ importapp.Classifier = (*OpenAIClassifier)(nil)
