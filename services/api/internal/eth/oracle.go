// Package eth implements the blockchain collaborators the core depends on: a
// read-only chain oracle over JSON-RPC and a token disbursement client over
// an engine-style REST API.
package eth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
)

// Oracle reads transaction state from an Ethereum JSON-RPC endpoint.
type Oracle struct {
	url     string
	hc      *http.Client
	breaker *breaker
}

type OracleOption func(*Oracle)

func WithOracleHTTPClient(hc *http.Client) OracleOption {
	return func(o *Oracle) { o.hc = hc }
}

func NewOracle(url string, opts ...OracleOption) *Oracle {
	o := &Oracle{
		url:     url,
		hc:      &http.Client{Timeout: 30 * time.Second},
		breaker: newBreaker(5, time.Minute),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Healthy reports whether the circuit to the RPC endpoint is closed.
func (o *Oracle) Healthy() bool {
	return !o.breaker.open()
}

// Transaction returns the transaction for hash, or nil when the chain has no
// record of it.
func (o *Oracle) Transaction(ctx context.Context, hash string) (*domain.TxInfo, error) {
	var raw struct {
		Hash  string `json:"hash"`
		To    string `json:"to"`
		Value string `json:"value"`
	}
	found, err := o.call(ctx, "eth_getTransactionByHash", []any{hash}, &raw)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	value, err := parseHexBig(raw.Value)
	if err != nil {
		return nil, fmt.Errorf("parse tx value %q: %w", raw.Value, err)
	}
	return &domain.TxInfo{Hash: raw.Hash, To: raw.To, ValueWei: value}, nil
}

// Receipt returns the receipt for hash, or nil while the transaction is still
// pending.
func (o *Oracle) Receipt(ctx context.Context, hash string) (*domain.TxReceipt, error) {
	var raw struct {
		Status      string `json:"status"`
		BlockNumber string `json:"blockNumber"`
		GasUsed     string `json:"gasUsed"`
	}
	found, err := o.call(ctx, "eth_getTransactionReceipt", []any{hash}, &raw)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	block, err := parseHexUint(raw.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("parse block number %q: %w", raw.BlockNumber, err)
	}
	gas, err := parseHexUint(raw.GasUsed)
	if err != nil {
		return nil, fmt.Errorf("parse gas used %q: %w", raw.GasUsed, err)
	}
	return &domain.TxReceipt{
		Succeeded:   raw.Status == "0x1",
		BlockNumber: block,
		GasUsed:     gas,
	}, nil
}

// Confirmation collapses receipt state into the three-way answer the monitor
// branches on.
func (o *Oracle) Confirmation(ctx context.Context, hash string) (domain.Confirmation, error) {
	receipt, err := o.Receipt(ctx, hash)
	if err != nil {
		return domain.ConfirmationPending, err
	}
	if receipt == nil {
		return domain.ConfirmationPending, nil
	}
	if receipt.Succeeded {
		return domain.ConfirmationConfirmed, nil
	}
	return domain.ConfirmationFailed, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call performs one JSON-RPC request. The bool result is false when the node
// answered with a null result (unknown hash or pending receipt).
func (o *Oracle) call(ctx context.Context, method string, params []any, out any) (bool, error) {
	if !o.breaker.allow() {
		return false, fmt.Errorf("%w: rpc circuit open", domain.ErrDependencyUnavailable)
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.hc.Do(req)
	if err != nil {
		o.breaker.failure()
		return false, fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		o.breaker.failure()
		return false, fmt.Errorf("%w: rpc status %d", domain.ErrDependencyUnavailable, resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		o.breaker.failure()
		return false, fmt.Errorf("decode rpc response: %w", err)
	}
	if envelope.Error != nil {
		o.breaker.failure()
		return false, fmt.Errorf("rpc error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	o.breaker.success()

	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return false, fmt.Errorf("decode rpc result: %w", err)
	}
	return true, nil
}

func parseHexBig(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("not a hex quantity")
	}
	return v, nil
}

func parseHexUint(s string) (uint64, error) {
	v, err := parseHexBig(s)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}
