package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"despensa/internal/config"
	"despensa/internal/errors"
	"despensa/internal/logger"
)

const maxResponseTokens = 4096

// OpenAIClient implements Analyzer against the OpenAI chat completions
// API using vision inputs. The API key is fetched from the KeyProvider
// on every call so that key rotation takes effect immediately.
type OpenAIClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	keys       KeyProvider
	categories []string
	logger     *zap.SugaredLogger
}

// NewOpenAIClient creates a client for the configured provider.
// categories is the list of category names the model is allowed to
// assign; anything outside it is discarded downstream.
func NewOpenAIClient(cfg *config.Config, keys KeyProvider, categories []string) *OpenAIClient {
	return &OpenAIClient{
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		model:      cfg.OpenAIModel,
		httpClient: &http.Client{Timeout: cfg.OpenAITimeout},
		keys:       keys,
		categories: categories,
		logger:     logger.Get(),
	}
}

// Wire types for the chat completions endpoint. Only the fields we use.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// rawResult mirrors the JSON the prompt asks for. Everything is a
// pointer because the model is allowed to return nulls.
type rawResult struct {
	StoreName    *string    `json:"storeName"`
	PurchaseDate *string    `json:"purchaseDate"`
	TotalAmount  *float64   `json:"totalAmount"`
	Products     []*rawItem `json:"products"`
}

type rawItem struct {
	Name         *string  `json:"name"`
	Quantity     *float64 `json:"quantity"`
	UnitPrice    *float64 `json:"unitPrice"`
	TotalPrice   *float64 `json:"totalPrice"`
	CategoryName *string  `json:"categoryName"`
	IsDiscount   *bool    `json:"isDiscount"`
}

func (c *OpenAIClient) analysisPrompt() string {
	var b strings.Builder
	b.WriteString("Analiza esta imagen de un ticket de compra y extrae la siguiente información en formato JSON:\n")
	b.WriteString("{\n")
	b.WriteString("  \"storeName\": \"nombre del establecimiento o null\",\n")
	b.WriteString("  \"purchaseDate\": \"fecha de compra en formato YYYY-MM-DD o null\",\n")
	b.WriteString("  \"totalAmount\": importe total del ticket como número o null,\n")
	b.WriteString("  \"products\": [\n")
	b.WriteString("    {\n")
	b.WriteString("      \"name\": \"nombre del producto\",\n")
	b.WriteString("      \"quantity\": cantidad como número,\n")
	b.WriteString("      \"unitPrice\": precio unitario como número,\n")
	b.WriteString("      \"totalPrice\": precio total de la línea como número,\n")
	b.WriteString("      \"categoryName\": \"una categoría de la lista permitida o null\",\n")
	b.WriteString("      \"isDiscount\": true si la línea es un descuento o promoción\n")
	b.WriteString("    }\n")
	b.WriteString("  ]\n")
	b.WriteString("}\n\n")
	b.WriteString("Categorías permitidas: ")
	b.WriteString(strings.Join(c.categories, ", "))
	b.WriteString(".\n")
	b.WriteString("Si un valor no aparece en el ticket, usa null. ")
	b.WriteString("Incluye cada línea del ticket como un producto, también los descuentos. ")
	b.WriteString("Responde únicamente con el JSON, sin texto adicional.")
	return b.String()
}

const storeNamePrompt = "Mira esta imagen de un ticket de compra y responde únicamente con el " +
	"nombre del establecimiento, sin texto adicional. Si no puedes identificarlo, responde con una cadena vacía."

// AnalyzeReceipt sends the image to the vision model and parses the
// structured result.
func (c *OpenAIClient) AnalyzeReceipt(ctx context.Context, image []byte, contentType string) (*Result, error) {
	content, err := c.complete(ctx, c.analysisPrompt(), image, contentType, true)
	if err != nil {
		return nil, err
	}

	payload := stripMarkdownFences(content)
	if err := validateAgainstSchema(receiptSchema(c.categories), []byte(payload)); err != nil {
		c.logger.Warnw("analysis response failed schema validation", "error", err)
		return nil, errors.Wrap(errors.ErrAIBadGateway, err)
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, errors.Wrap(errors.ErrAIBadGateway, err)
	}

	result := &Result{
		TotalAmount: decimal.NewFromInt(-1),
	}
	if raw.StoreName != nil {
		result.StoreName = strings.TrimSpace(*raw.StoreName)
	}
	if raw.TotalAmount != nil {
		result.TotalAmount = decimal.NewFromFloat(*raw.TotalAmount)
	}
	if raw.PurchaseDate != nil {
		if t, ok := parsePurchaseDate(*raw.PurchaseDate); ok {
			result.PurchaseDate = &t
		}
	}

	for _, p := range raw.Products {
		if p == nil {
			// Keep the slot; validation downstream reports it as discarded.
			result.Items = append(result.Items, nil)
			continue
		}
		item := &ItemCandidate{CategoryName: p.CategoryName}
		if p.Name != nil {
			item.Name = *p.Name
		}
		if p.Quantity != nil {
			item.Quantity = decimal.NewFromFloat(*p.Quantity)
		}
		if p.UnitPrice != nil {
			item.UnitPrice = decimal.NewFromFloat(*p.UnitPrice)
		}
		if p.TotalPrice != nil {
			item.TotalPrice = decimal.NewFromFloat(*p.TotalPrice)
		}
		if p.IsDiscount != nil {
			item.IsDiscount = *p.IsDiscount
		}
		result.Items = append(result.Items, item)
	}

	return result, nil
}

// ExtractStoreName asks only for the store name. Used by the upload
// pre-fill, so failures should stay cheap for the caller to ignore.
func (c *OpenAIClient) ExtractStoreName(ctx context.Context, image []byte, contentType string) (string, error) {
	content, err := c.complete(ctx, storeNamePrompt, image, contentType, false)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(content), "\"“”"), nil
}

// complete performs one vision chat completion and returns the raw
// message content.
func (c *OpenAIClient) complete(ctx context.Context, prompt string, image []byte, contentType string, jsonMode bool) (string, error) {
	apiKey, err := c.keys.OpenAIKey(ctx)
	if err != nil {
		return "", err
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(image))
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
				},
			},
		},
		MaxTokens:   maxResponseTokens,
		Temperature: 0,
	}
	if jsonMode {
		reqBody.ResponseFormat = &respFormat{Type: "json_object"}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", errors.Wrap(errors.ErrInternalServer, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(errors.ErrInternalServer, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warnw("analysis request failed", "error", err)
		return "", errors.Wrap(errors.ErrAIUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(errors.ErrAIUnavailable, err)
	}

	c.logger.Debugw("analysis request completed",
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", errors.Wrap(errors.ErrAIUnauthorized, fmt.Errorf("openai status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", errors.Wrap(errors.ErrAIRateLimited, fmt.Errorf("openai status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.logger.Warnw("analysis provider returned error", "status", resp.StatusCode, "body", truncate(string(respBody), 512))
		return "", errors.Wrap(errors.ErrAIBadGateway, fmt.Errorf("openai status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.Wrap(errors.ErrAIBadGateway, err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.Wrap(errors.ErrAIBadGateway, fmt.Errorf("openai response has no choices"))
	}
	return parsed.Choices[0].Message.Content, nil
}

// stripMarkdownFences removes a surrounding ```json ... ``` block that
// some models emit despite instructions.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var purchaseDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02/01/2006",
	"02-01-2006",
}

func parsePurchaseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range purchaseDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
