package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/meridianfarms/pickups-backend/pkg/config"
	apperrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
)

const idempotencyHeader = "Idempotency-Key"

// Client talks to the commerce platform's subscription-contract API. Charges
// are created against a contract; the platform may settle synchronously or
// answer "accepted" and confirm later through the billing webhook.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	token   string
	logg    *logger.Logger
}

// BillingAttemptRequest asks the platform to charge one billing cycle.
type BillingAttemptRequest struct {
	ContractID     string `json:"contract_id"`
	IdempotencyKey string `json:"-"`
}

// BillingAttemptResult is the platform's answer to a charge request.
// Ready=false means the charge was accepted but not yet settled; the final
// outcome arrives on the webhook keyed by AttemptRef.
type BillingAttemptResult struct {
	AttemptRef   string `json:"attempt_ref"`
	Ready        bool   `json:"ready"`
	Success      bool   `json:"success"`
	OrderID      string `json:"order_id,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewClient builds a retrying HTTP client from the platform config.
func NewClient(cfg config.PlatformConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("platform base url is required")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, fmt.Errorf("platform access token is required")
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil

	return &Client{
		http:    rc,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AccessToken,
		logg:    logg,
	}, nil
}

// CreateBillingAttempt submits a charge for one cycle of a contract. The
// idempotency key is forwarded so platform-side retries collapse into one
// charge even when our retrying transport resends the request.
func (c *Client) CreateBillingAttempt(ctx context.Context, req BillingAttemptRequest) (*BillingAttemptResult, error) {
	if req.ContractID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "contract id is required")
	}
	if req.IdempotencyKey == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "idempotency key is required")
	}

	var result BillingAttemptResult
	path := fmt.Sprintf("/contracts/%s/billing_attempts", req.ContractID)
	if err := c.doJSON(ctx, http.MethodPost, path, req.IdempotencyKey, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBillingAttempt fetches the current state of a previously created attempt.
// Used to recover attempts left pending by a crash between the platform call
// and the local status write.
func (c *Client) GetBillingAttempt(ctx context.Context, attemptRef string) (*BillingAttemptResult, error) {
	if attemptRef == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "attempt ref is required")
	}
	var result BillingAttemptResult
	path := fmt.Sprintf("/billing_attempts/%s", attemptRef)
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelContract terminates the platform-side contract when a subscription is
// cancelled locally.
func (c *Client) CancelContract(ctx context.Context, contractID string) error {
	if contractID == "" {
		return apperrors.New(apperrors.CodeValidation, "contract id is required")
	}
	path := fmt.Sprintf("/contracts/%s/cancel", contractID)
	return c.doJSON(ctx, http.MethodPost, path, "", nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path, idempotencyKey string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding platform request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building platform request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDependency, err, "platform request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDependency, err, "reading platform response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return platformStatusError(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Wrap(apperrors.CodeDependency, err, "decoding platform response")
	}
	return nil
}

func platformStatusError(status int, body []byte) error {
	msg := fmt.Sprintf("platform returned status %d", status)
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			msg = parsed.Message
		} else if parsed.Error != "" {
			msg = parsed.Error
		}
	}
	switch {
	case status == http.StatusNotFound:
		return apperrors.New(apperrors.CodeNotFound, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.New(apperrors.CodeDependency, "platform rejected credentials")
	case status >= 400 && status < 500:
		return apperrors.New(apperrors.CodeDependency, msg)
	default:
		return apperrors.New(apperrors.CodeDependency, msg)
	}
}
