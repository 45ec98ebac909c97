// Package client предоставляет программный клиент API сервиса проверки кодов.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом проверки кодов.
// Cookie-jar сохраняет сессионный cookie между запросами, поэтому все
// проверки одного клиента попадают в один журнал на сервере.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// CodeResult описывает результат проверки одного кода в формате API сервиса.
type CodeResult struct {
	Code                 string `json:"code"`
	Valid                bool   `json:"valid"`
	Error                string `json:"error,omitempty"`
	ErrorPosition        int    `json:"error_position,omitempty"`
	ProvidedCheckDigit   *int   `json:"provided_check_digit,omitempty"`
	CalculatedCheckDigit *int   `json:"calculated_check_digit,omitempty"`
	Checksum             *int   `json:"checksum,omitempty"`
}

// NewClient создаёт HTTP-клиент для обращения к сервису по указанному адресу.
func NewClient(baseURL string, timeout time.Duration) *Client {
	jar, _ := cookiejar.New(nil)

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}
}

func (c *Client) url(path string) string {
	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return base + path
}

// VerifyCode проверяет один код через сервис.
func (c *Client) VerifyCode(ctx context.Context, code string) (*CodeResult, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("client not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.url("/api/codes/verify"), strings.NewReader(code))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result CodeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}

type batchRequest struct {
	Codes []string `json:"codes"`
}

// VerifyBatch проверяет пачку кодов одним запросом. Результаты позиционно
// соответствуют входному списку.
func (c *Client) VerifyBatch(ctx context.Context, codes []string) ([]CodeResult, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("client not configured")
	}

	body, err := json.Marshal(batchRequest{Codes: codes})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.url("/api/codes/verify/batch"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var results []CodeResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return results, nil
}
