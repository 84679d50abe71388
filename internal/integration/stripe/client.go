package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/pkg/logger"
)

// Client представляет клиент для работы с API Stripe
type Client struct {
	baseURL    string
	apiKey     string
	webhookKey string
	httpClient *http.Client
	log        *logger.Logger
}

// Config конфигурация для клиента Stripe
type Config struct {
	APIKey     string
	WebhookKey string
	BaseURL    string
}

// ErrorResponse представляет ошибку из API Stripe
type ErrorResponse struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient создает новый клиент Stripe
func NewClient(cfg Config, log *logger.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.stripe.com/v1"
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		webhookKey: cfg.WebhookKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
}

// GetWebhookKey возвращает ключ для верификации webhook-ов Stripe
func (c *Client) GetWebhookKey() string {
	return c.webhookKey
}

// doForm выполняет запрос к API Stripe с form-urlencoded телом.
// Результат декодируется в out, ошибки API классифицируются
// на временные и постоянные.
func (c *Client) doForm(ctx context.Context, method, path string, formData url.Values, out interface{}) error {
	var body io.Reader
	if formData != nil {
		body = strings.NewReader(formData.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if formData != nil {
		req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Add("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Сетевые сбои и таймауты считаем временными
		return domain.NewGatewayError(method+" "+path, "network_error", err.Error(), 0, domain.ErrGatewayTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewGatewayError(method+" "+path, "read_error", err.Error(), resp.StatusCode, domain.ErrGatewayTransient, err)
	}

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error *ErrorResponse `json:"error"`
		}
		_ = json.Unmarshal(raw, &errBody)
		return c.classifyError(method+" "+path, resp.StatusCode, errBody.Error)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// classifyError разделяет ошибки Stripe на временные и постоянные.
// 429 и 5xx можно ретраить, остальные 4xx ретраить бессмысленно.
func (c *Client) classifyError(operation string, statusCode int, apiErr *ErrorResponse) error {
	code := ""
	message := fmt.Sprintf("stripe API returned status %d", statusCode)
	if apiErr != nil {
		code = apiErr.Code
		if apiErr.Message != "" {
			message = apiErr.Message
		}
	}

	kind := domain.ErrGatewayPermanent
	switch {
	case statusCode == http.StatusNotFound || code == "resource_missing":
		kind = domain.ErrResourceMissing
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		kind = domain.ErrGatewayTransient
	}

	c.log.Warnw("Stripe API error", "operation", operation, "status", statusCode, "code", code, "message", message)
	return domain.NewGatewayError(operation, code, message, statusCode, kind, nil)
}
