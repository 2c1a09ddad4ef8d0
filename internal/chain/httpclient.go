package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPTransferClient implements TransferClient against a signer sidecar
// over HTTP. The sidecar holds the RPC connections; this process only
// describes the transfer and supplies the signing key reference.
type HTTPTransferClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransferClient creates a TransferClient for the sidecar at
// baseURL.
func NewHTTPTransferClient(baseURL string, timeout time.Duration) *HTTPTransferClient {
	return &HTTPTransferClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type transferPayload struct {
	ChainID      uint64 `json:"chainId"`
	Token        string `json:"token"`
	TokenAddress string `json:"tokenAddress,omitempty"`
	From         string `json:"from"`
	To           string `json:"to"`
	AmountBase   string `json:"amountBase"`
	SigningKey   string `json:"signingKey"`
	Memo         string `json:"memo,omitempty"`
}

type batchPayload struct {
	ChainID      uint64             `json:"chainId"`
	Token        string             `json:"token"`
	TokenAddress string             `json:"tokenAddress,omitempty"`
	From         string             `json:"from"`
	Recipients   []batchLinePayload `json:"recipients"`
}

type batchLinePayload struct {
	To         string `json:"to"`
	AmountBase string `json:"amountBase"`
}

type transferResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	Error   string `json:"error"`
}

type receiptResponse struct {
	TxHash      string `json:"txHash"`
	BlockNumber int64  `json:"blockNumber"`
	Confirmed   bool   `json:"confirmed"`
}

// SignAndBroadcast submits one transfer to the sidecar.
func (c *HTTPTransferClient) SignAndBroadcast(ctx context.Context, req TransferRequest) (string, error) {
	var out transferResponse
	err := c.post(ctx, "/v1/transfers", transferPayload{
		ChainID:      req.ChainID,
		Token:        req.Token,
		TokenAddress: req.TokenAddress,
		From:         req.From,
		To:           req.To,
		AmountBase:   req.AmountBase.String(),
		SigningKey:   req.SigningKey,
		Memo:         req.Memo,
	}, &out)
	if err != nil {
		return "", err
	}
	if !out.Success {
		return "", fmt.Errorf("transfer rejected: %s", out.Error)
	}
	return out.TxHash, nil
}

// WaitForConfirmation polls the sidecar for the receipt.
func (c *HTTPTransferClient) WaitForConfirmation(ctx context.Context, chainID uint64, txHash string) (*Receipt, error) {
	url := fmt.Sprintf("%s/v1/receipts/%d/%s", c.baseURL, chainID, txHash)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("receipt lookup returned status %d", resp.StatusCode)
	}

	var out receiptResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &Receipt{TxHash: out.TxHash, BlockNumber: out.BlockNumber, Confirmed: out.Confirmed}, nil
}

// BatchTransfer submits one approve-then-transfer batch call.
func (c *HTTPTransferClient) BatchTransfer(ctx context.Context, req BatchTransferRequest) (*BatchTransferResult, error) {
	lines := make([]batchLinePayload, len(req.Recipients))
	for i, r := range req.Recipients {
		lines[i] = batchLinePayload{To: r.To, AmountBase: r.AmountBase.String()}
	}

	var out transferResponse
	err := c.post(ctx, "/v1/batch-transfers", batchPayload{
		ChainID:      req.ChainID,
		Token:        req.Token,
		TokenAddress: req.TokenAddress,
		From:         req.From,
		Recipients:   lines,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &BatchTransferResult{Success: out.Success, TxHash: out.TxHash, ErrorMessage: out.Error}, nil
}

func (c *HTTPTransferClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("signer sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signer sidecar returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
