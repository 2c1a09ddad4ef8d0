package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meridianpay/meridian-backend/internal/domain"
)

// RemoteResult is the remote payout engine's answer for one request.
type RemoteResult struct {
	TxHash string `json:"txHash"`
}

// RemoteEngine is the preferred, higher-throughput execution path.
type RemoteEngine interface {
	ExecutePayout(ctx context.Context, req domain.PayoutRequest, amountBase string) (*RemoteResult, error)
}

// HTTPRemoteEngine calls the payout engine over HTTP. Every call
// carries the caller's deadline; a request that exceeds it is a failure
// for circuit-breaker purposes.
type HTTPRemoteEngine struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRemoteEngine creates a client for the payout engine at
// baseURL.
func NewHTTPRemoteEngine(baseURL string, timeout time.Duration) *HTTPRemoteEngine {
	return &HTTPRemoteEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type remotePayoutRequest struct {
	FromAddress string `json:"fromAddress"`
	ToAddress   string `json:"toAddress"`
	AmountBase  string `json:"amountBase"`
	Token       string `json:"token"`
	ChainID     uint64 `json:"chainId"`
	Memo        string `json:"memo,omitempty"`
}

type remotePayoutResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	Error   string `json:"error"`
}

// ExecutePayout submits one payout to the remote engine.
func (e *HTTPRemoteEngine) ExecutePayout(ctx context.Context, req domain.PayoutRequest, amountBase string) (*RemoteResult, error) {
	body, err := json.Marshal(remotePayoutRequest{
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
		AmountBase:  amountBase,
		Token:       req.Token,
		ChainID:     req.ChainID,
		Memo:        req.Memo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/payouts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payout engine unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payout engine returned status %d", resp.StatusCode)
	}

	var out remotePayoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode payout response: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("payout engine rejected request: %s", out.Error)
	}

	return &RemoteResult{TxHash: out.TxHash}, nil
}
