package eth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
)

// ErrTransferTimeout reports a disbursement that did not reach a terminal
// state within the allowed wait. Treated as a terminal failure for the
// settlement attempt, never retried silently.
var ErrTransferTimeout = errors.New("token transfer timed out")

// Disburser sends reward tokens through an engine-style API: transfers are
// queued and polled by queue id until mined or errored.
type Disburser struct {
	baseURL       string
	secretKey     string
	chainID       string
	tokenContract string
	hc            *http.Client
	breaker       *breaker
	pollInterval  time.Duration
}

type DisburserOption func(*Disburser)

func WithDisburserHTTPClient(hc *http.Client) DisburserOption {
	return func(d *Disburser) { d.hc = hc }
}

func WithPollInterval(interval time.Duration) DisburserOption {
	return func(d *Disburser) { d.pollInterval = interval }
}

func NewDisburser(baseURL, secretKey, chainID, tokenContract string, opts ...DisburserOption) *Disburser {
	d := &Disburser{
		baseURL:       baseURL,
		secretKey:     secretKey,
		chainID:       chainID,
		tokenContract: tokenContract,
		hc:            &http.Client{Timeout: 60 * time.Second},
		breaker:       newBreaker(5, time.Minute),
		pollInterval:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Healthy reports whether the circuit to the engine is closed.
func (d *Disburser) Healthy() bool {
	return !d.breaker.open()
}

// Transfer queues an ERC-20 transfer of amount whole tokens to the wallet.
func (d *Disburser) Transfer(ctx context.Context, to string, amount int) (domain.TransferTicket, error) {
	if !d.breaker.allow() {
		return domain.TransferTicket{}, fmt.Errorf("%w: engine circuit open", domain.ErrDependencyUnavailable)
	}

	url := fmt.Sprintf("%s/contract/%s/%s/erc20/transfer", d.baseURL, d.chainID, d.tokenContract)
	body, err := json.Marshal(map[string]string{
		"toAddress": to,
		"amount":    fmt.Sprintf("%d", amount),
	})
	if err != nil {
		return domain.TransferTicket{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.TransferTicket{}, err
	}
	d.setHeaders(req)

	resp, err := d.hc.Do(req)
	if err != nil {
		d.breaker.failure()
		return domain.TransferTicket{}, fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.breaker.failure()
		return domain.TransferTicket{}, fmt.Errorf("engine transfer status %d", resp.StatusCode)
	}

	var payload struct {
		Result struct {
			QueueID         string `json:"queueId"`
			TransactionHash string `json:"transactionHash"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		d.breaker.failure()
		return domain.TransferTicket{}, fmt.Errorf("decode transfer response: %w", err)
	}
	d.breaker.success()

	return domain.TransferTicket{
		QueueID: payload.Result.QueueID,
		TxHash:  payload.Result.TransactionHash,
	}, nil
}

// WaitForCompletion polls the queued transfer until it is mined, errored, or
// maxWait elapses. Returns the reward transaction hash on success.
func (d *Disburser) WaitForCompletion(ctx context.Context, queueID string, maxWait time.Duration) (string, error) {
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		status, txHash, errMsg, err := d.transferStatus(ctx, queueID)
		if err != nil {
			return "", err
		}
		switch status {
		case "mined":
			return txHash, nil
		case "errored", "cancelled":
			if errMsg == "" {
				errMsg = "transfer " + status
			}
			return "", errors.New(errMsg)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w after %s", ErrTransferTimeout, maxWait)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Disburser) transferStatus(ctx context.Context, queueID string) (status, txHash, errMsg string, err error) {
	if !d.breaker.allow() {
		return "", "", "", fmt.Errorf("%w: engine circuit open", domain.ErrDependencyUnavailable)
	}

	url := fmt.Sprintf("%s/transaction/status/%s", d.baseURL, queueID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", "", err
	}
	d.setHeaders(req)

	resp, err := d.hc.Do(req)
	if err != nil {
		d.breaker.failure()
		return "", "", "", fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.breaker.failure()
		return "", "", "", fmt.Errorf("engine status %d", resp.StatusCode)
	}

	var payload struct {
		Result struct {
			Status          string `json:"status"`
			TransactionHash string `json:"transactionHash"`
			ErrorMessage    string `json:"errorMessage"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		d.breaker.failure()
		return "", "", "", fmt.Errorf("decode status response: %w", err)
	}
	d.breaker.success()

	return payload.Result.Status, payload.Result.TransactionHash, payload.Result.ErrorMessage, nil
}

func (d *Disburser) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+d.secretKey)
	req.Header.Set("Content-Type", "application/json")
}
