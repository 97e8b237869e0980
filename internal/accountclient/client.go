// Package accountclient adapts the remote account service. The engine never
// holds the source of truth for balances; every balance read and mutation
// goes through this boundary.
package accountclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/models"
)

// Client is the typed surface of the account service. All operations are
// safe to retry except Credit and Debit, which the resilience layer treats
// conservatively.
type Client interface {
	GetAccount(ctx context.Context, accountID string) (*models.AccountInfo, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*models.AccountInfo, error)
	Credit(ctx context.Context, accountID string, amount int64) error
	Debit(ctx context.Context, accountID string, amount int64) error
	AccountExists(ctx context.Context, accountID string) (bool, error)
	HasAccountAccess(ctx context.Context, accountID, userID string) (bool, error)
}

// HTTPClient talks JSON over HTTP to the account service. It classifies
// responses into the engine's error taxonomy; it carries no resilience
// policy of its own.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *HTTPClient) GetAccount(ctx context.Context, accountID string) (*models.AccountInfo, error) {
	var account models.AccountInfo
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/internal/accounts/%s", accountID), nil, &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *HTTPClient) GetAccountByNumber(ctx context.Context, accountNumber string) (*models.AccountInfo, error) {
	var account models.AccountInfo
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/internal/accounts/number/%s", accountNumber), nil, &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

type mutationRequest struct {
	Amount int64 `json:"amount"`
}

func (c *HTTPClient) Credit(ctx context.Context, accountID string, amount int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/internal/accounts/%s/credit", accountID), mutationRequest{Amount: amount}, nil)
}

func (c *HTTPClient) Debit(ctx context.Context, accountID string, amount int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/internal/accounts/%s/debit", accountID), mutationRequest{Amount: amount}, nil)
}

func (c *HTTPClient) AccountExists(ctx context.Context, accountID string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/internal/accounts/%s/exists", accountID), nil, &out)
	if err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return out.Exists, nil
}

func (c *HTTPClient) HasAccountAccess(ctx context.Context, accountID, userID string) (bool, error) {
	var out struct {
		HasAccess bool `json:"hasAccess"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/internal/accounts/%s/access/%s", accountID, userID), nil, &out)
	if err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return out.HasAccess, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "marshal account request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "build account request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindInfrastructure, errs.CodeUnavailable, "account service call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errs.Wrap(errs.KindInfrastructure, errs.CodeUnavailable, "decode account response", err)
		}
		return nil
	}

	return c.classify(resp)
}

// classify maps non-2xx responses into the taxonomy. 5xx is transient
// infrastructure; everything else is a final business answer.
func (c *HTTPClient) classify(resp *http.Response) error {
	var out struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.Message == "" {
		out.Message = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errs.Newf(errs.KindBusiness, errs.CodeNotFound, "account service: %s", out.Message)
	case resp.StatusCode == http.StatusForbidden:
		return errs.Newf(errs.KindBusiness, errs.CodeForbidden, "account service: %s", out.Message)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return errs.Newf(errs.KindBusiness, errs.CodeInsufficientBalance, "account service: %s", out.Message)
	case resp.StatusCode >= 500:
		return errs.Newf(errs.KindInfrastructure, errs.CodeUnavailable, "account service error: %s", out.Message)
	default:
		return errs.Newf(errs.KindBusiness, errs.CodeInvalidRequest, "account service rejected request: %s", out.Message)
	}
}
