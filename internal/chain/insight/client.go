// Package insight provides a REST client for an Insight-style block
// explorer API, used for multi-currency balances and script-bearing
// UTXO listings that the electrum mirrors do not expose.
package insight

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/verso-wallet/verso/internal/chain"
	"github.com/verso-wallet/verso/internal/keychain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 8 << 20
)

// ClientOptions contains optional configuration for the insight client.
type ClientOptions struct {
	// BaseURL is the explorer API root.
	BaseURL string

	// Timeout overrides the per-request timeout.
	Timeout time.Duration

	// Params selects the address network.
	Params keychain.Params
}

// Client provides explorer queries against a single origin.
type Client struct {
	baseURL    string
	params     keychain.Params
	httpClient *http.Client
}

// NewClient creates a new insight client.
func NewClient(opts *ClientOptions) (*Client, error) {
	if opts == nil || opts.BaseURL == "" {
		return nil, walleterr.WithSuggestion(
			walleterr.New("NO_EXPLORER", "no explorer URL configured"),
			"set the explorer base URL in the configuration",
		)
	}

	timeout := defaultTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	params := opts.Params
	if params.Name == "" {
		params = keychain.MainNetParams
	}

	return &Client{
		baseURL: opts.BaseURL,
		params:  params,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	// The explorer is a single origin with no mirror failover, so
	// transient failures are retried with backoff instead.
	raw, err := chain.Retry(ctx, func() ([]byte, error) {
		return c.getOnce(ctx, path)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", walleterr.ErrDecode, err)
	}
	return nil
}

func (c *Client) getOnce(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, chain.WrapRetryable(fmt.Errorf("%w: %w", walleterr.ErrNetwork, err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		if wait := chain.ParseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		return nil, walleterr.Wrap(walleterr.ErrRateLimited, "explorer throttled %s", path)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, chain.WrapRetryable(fmt.Errorf("%w: status %d", walleterr.ErrNetwork, resp.StatusCode))
	default:
		return nil, fmt.Errorf("%w: status %d", walleterr.ErrNetwork, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, chain.WrapRetryable(fmt.Errorf("%w: reading response: %w", walleterr.ErrNetwork, err))
	}
	return raw, nil
}

// GetCurrencyBalances returns per-currency confirmed balances for an
// address, keyed by currency identifier, in smallest units.
func (c *Client) GetCurrencyBalances(ctx context.Context, address string) (map[string]*big.Int, error) {
	if err := keychain.ValidateAddress(c.params, address); err != nil {
		return nil, err
	}

	var resp map[string]json.Number
	path := fmt.Sprintf("/addr/%s/currencybalance", url.PathEscape(address))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	balances := make(map[string]*big.Int, len(resp))
	for currency, amount := range resp {
		v, err := chain.ParseAmount(amount.String(), chain.Decimals)
		if err != nil {
			return nil, fmt.Errorf("%w: balance for %s: %w", walleterr.ErrDecode, currency, err)
		}
		balances[currency] = v
	}
	return balances, nil
}

type utxoResponse struct {
	TxID      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	Height    int64  `json:"height"`
	Satoshis  int64  `json:"satoshis"`
	ScriptHex string `json:"scriptPubKey"`
}

// GetAddressUTXOs returns unspent outputs with their full output
// scripts. Script bytes are required to decode asset-bearing outputs.
func (c *Client) GetAddressUTXOs(ctx context.Context, address string) ([]chain.UTXO, error) {
	if err := keychain.ValidateAddress(c.params, address); err != nil {
		return nil, err
	}

	var resp []utxoResponse
	path := fmt.Sprintf("/addr/%s/utxo", url.PathEscape(address))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	utxos := make([]chain.UTXO, 0, len(resp))
	for _, u := range resp {
		if err := chain.ValidateTxID(u.TxID); err != nil {
			return nil, err
		}
		if err := chain.ValidateNonNegative("satoshis", u.Satoshis); err != nil {
			return nil, err
		}
		script, err := hex.DecodeString(u.ScriptHex)
		if err != nil {
			return nil, fmt.Errorf("%w: output script: %w", walleterr.ErrDecode, err)
		}
		utxos = append(utxos, chain.UTXO{
			TxID:   u.TxID,
			Vout:   u.Vout,
			Height: u.Height,
			Value:  u.Satoshis,
			Script: script,
		})
	}
	return utxos, nil
}

type txListResponse struct {
	Transactions []string `json:"transactions"`
}

// ListTransactions returns the txids touching an address, most recent
// first.
func (c *Client) ListTransactions(ctx context.Context, address string) ([]chain.TxRef, error) {
	if err := keychain.ValidateAddress(c.params, address); err != nil {
		return nil, err
	}

	var resp txListResponse
	path := fmt.Sprintf("/addrs/%s/txs", url.PathEscape(address))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	refs := make([]chain.TxRef, 0, len(resp.Transactions))
	for _, txid := range resp.Transactions {
		if err := chain.ValidateTxID(txid); err != nil {
			return nil, err
		}
		refs = append(refs, chain.TxRef{TxID: txid})
	}
	return refs, nil
}

type txDetailVout struct {
	Value        json.Number `json:"value"`
	ScriptPubKey struct {
		Addresses       []string               `json:"addresses"`
		Type            string                 `json:"type"`
		ReserveBalances map[string]json.Number `json:"reservebalances"`
	} `json:"scriptPubKey"`
}

type txDetailResponse struct {
	TxID          string         `json:"txid"`
	Confirmations int64          `json:"confirmations"`
	Time          int64          `json:"time"`
	Vout          []txDetailVout `json:"vout"`
}

// GetTransactionDetail returns a decoded transaction including
// per-currency reserve balances on smart outputs.
func (c *Client) GetTransactionDetail(ctx context.Context, txid string) (*chain.TxDetail, error) {
	if err := chain.ValidateTxID(txid); err != nil {
		return nil, err
	}

	var resp txDetailResponse
	if err := c.get(ctx, "/tx/"+url.PathEscape(txid), &resp); err != nil {
		return nil, err
	}
	if resp.TxID != txid {
		return nil, walleterr.WithDetails(walleterr.ErrDecode, map[string]string{
			"field": "txid",
		})
	}

	detail := &chain.TxDetail{
		TxID:          resp.TxID,
		Confirmations: resp.Confirmations,
		Time:          resp.Time,
		Outputs:       make([]chain.TxOutDetail, 0, len(resp.Vout)),
	}
	for _, vout := range resp.Vout {
		value, err := chain.ParseAmount(vout.Value.String(), chain.Decimals)
		if err != nil {
			return nil, fmt.Errorf("%w: output value: %w", walleterr.ErrDecode, err)
		}
		if !value.IsInt64() {
			return nil, walleterr.WithDetails(walleterr.ErrDecode, map[string]string{
				"field": "value",
			})
		}
		out := chain.TxOutDetail{
			Value:             value.Int64(),
			Addresses:         vout.ScriptPubKey.Addresses,
			IsReserveTransfer: vout.ScriptPubKey.Type == "cryptocondition",
		}
		if len(vout.ScriptPubKey.ReserveBalances) > 0 {
			out.ReserveBalances = make(map[string]*big.Int, len(vout.ScriptPubKey.ReserveBalances))
			for currency, amount := range vout.ScriptPubKey.ReserveBalances {
				v, err := chain.ParseAmount(amount.String(), chain.Decimals)
				if err != nil {
					return nil, fmt.Errorf("%w: reserve balance for %s: %w", walleterr.ErrDecode, currency, err)
				}
				out.ReserveBalances[currency] = v
			}
		}
		detail.Outputs = append(detail.Outputs, out)
	}
	return detail, nil
}

type broadcastResponse struct {
	TxID string `json:"txid"`
}

// Broadcast submits a signed raw transaction and returns its txid.
func (c *Client) Broadcast(ctx context.Context, rawHex string) (string, error) {
	if err := chain.ValidateHex(rawHex); err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]string{"rawtx": rawHex})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", walleterr.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", walleterr.ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", walleterr.Wrap(walleterr.ErrTxRejected, "status %d: %s", resp.StatusCode, string(raw))
	}

	var br broadcastResponse
	if err := json.Unmarshal(raw, &br); err != nil {
		return "", fmt.Errorf("%w: decoding response: %w", walleterr.ErrDecode, err)
	}
	if err := chain.ValidateTxID(br.TxID); err != nil {
		return "", fmt.Errorf("broadcast accepted but returned malformed txid: %w", err)
	}
	return br.TxID, nil
}
