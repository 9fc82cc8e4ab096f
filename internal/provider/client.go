// Package provider implements the bank-aggregator API client. It speaks the
// aggregator's JSON-over-HTTP protocol and classifies API failures into the
// connector error taxonomy so the pool can decide what to retry.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"finsight/internal/core"
)

// Client is the aggregator API client. Construct one at process start and
// share it; it holds no per-request state beyond the http.Client.
type Client struct {
	baseURL  string
	clientID string
	secret   string
	http     *http.Client
}

func NewClient(baseURL, clientID, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		clientID: clientID,
		secret:   secret,
		http:     &http.Client{Timeout: timeout},
	}
}

type transactionsRequest struct {
	ClientID    string             `json:"client_id"`
	Secret      string             `json:"secret"`
	AccessToken string             `json:"access_token"`
	StartDate   string             `json:"start_date"`
	EndDate     string             `json:"end_date"`
	Options     transactionOptions `json:"options"`
}

type transactionOptions struct {
	Count int `json:"count"`
}

type transactionsResponse struct {
	Transactions []core.RawTransaction `json:"transactions"`
}

type apiError struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// FetchTransactions implements connector.Client. The credential is the opaque
// access-token reference handed out by the auth collaborator.
func (c *Client) FetchTransactions(ctx context.Context, credential, startDate, endDate string, count int) ([]core.RawTransaction, error) {
	reqBody := transactionsRequest{
		ClientID:    c.clientID,
		Secret:      c.secret,
		AccessToken: credential,
		StartDate:   startDate,
		EndDate:     endDate,
		Options:     transactionOptions{Count: count},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal transactions request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transactions/get", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build transactions request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		reason := core.ReasonTransient
		if !errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !isTimeout(err) {
			reason = core.ReasonUnknown
		}
		return nil, &core.ConnectorError{Reason: reason, Err: fmt.Errorf("aggregator request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	var parsed transactionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &core.ConnectorError{Reason: core.ReasonUnknown, Err: fmt.Errorf("decode transactions response: %w", err)}
	}
	return parsed.Transactions, nil
}

// classifyStatus maps an aggregator error response to the failure taxonomy.
// ITEM_LOGIN_REQUIRED means the stored credential is dead and the user must
// relink; it is surfaced distinctly and never retried.
func classifyStatus(resp *http.Response) *core.ConnectorError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)

	err := fmt.Errorf("aggregator status %d: %s %s", resp.StatusCode, apiErr.ErrorCode, apiErr.ErrorMessage)

	switch {
	case apiErr.ErrorCode == "ITEM_LOGIN_REQUIRED":
		return &core.ConnectorError{Reason: core.ReasonAuthRequired, Err: err}
	case resp.StatusCode == http.StatusTooManyRequests || apiErr.ErrorCode == "RATE_LIMIT_EXCEEDED":
		return &core.ConnectorError{Reason: core.ReasonRateLimit, Err: err}
	case resp.StatusCode >= 500:
		return &core.ConnectorError{Reason: core.ReasonTransient, Err: err}
	default:
		return &core.ConnectorError{Reason: core.ReasonUnknown, Err: err}
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
