// Package electrum provides a failover client for Electrum-protocol
// indexer mirrors speaking JSON-RPC over HTTPS.
package electrum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/verso-wallet/verso/internal/chain"
	"github.com/verso-wallet/verso/internal/keychain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

const (
	// defaultTimeout bounds a single mirror round trip.
	defaultTimeout = 15 * time.Second

	// maxResponseBytes caps an upstream response body.
	maxResponseBytes = 8 << 20

	// FallbackFeePerKB is used when the upstream estimator declines
	// to answer (returns a negative value).
	FallbackFeePerKB = 10_000
)

// ClientOptions contains optional configuration for the electrum client.
type ClientOptions struct {
	// Servers is the list of mirror base URLs, tried in rotation.
	Servers []string

	// Timeout overrides the per-request timeout.
	Timeout time.Duration

	// Params selects the address network.
	Params keychain.Params
}

// Client provides chain queries and broadcast over a set of mirrors.
// Each call starts from a rotating mirror index and tries every mirror
// once before surfacing the last error.
type Client struct {
	servers    []string
	params     keychain.Params
	httpClient *http.Client
	limiter    *chain.RateLimiter
	next       atomic.Uint64
	reqID      atomic.Uint64
}

// NewClient creates a new electrum client.
func NewClient(opts *ClientOptions) (*Client, error) {
	if opts == nil || len(opts.Servers) == 0 {
		return nil, walleterr.WithSuggestion(
			walleterr.New("NO_SERVERS", "no electrum servers configured"),
			"add at least one mirror URL to the configuration",
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
		servers: opts.Servers,
		params:  params,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: chain.DefaultRateLimiter(),
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call posts a JSON-RPC request to each mirror in rotation until one
// answers, decoding the result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	// Requests are paced per method so a burst of balance polls cannot
	// starve broadcasts.
	if err := c.limiter.Wait(ctx, method); err != nil {
		return err
	}

	start := c.next.Add(1)
	var lastErr error
	for i := range c.servers {
		server := c.servers[(start+uint64(i))%uint64(len(c.servers))]

		if err := c.callOne(ctx, server, body, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Upstream rejections are definitive; only transport and
			// decode failures move on to the next mirror.
			var rejected *walleterr.WalletError
			if walleterr.As(err, &rejected) && rejected.Code == walleterr.ErrTxRejected.Code {
				return err
			}
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("all %d mirrors failed for %s: %w", len(c.servers), method, lastErr)
}

func (c *Client) callOne(ctx context.Context, server string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", walleterr.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d from %s", walleterr.ErrNetwork, resp.StatusCode, server)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", walleterr.ErrNetwork, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("%w: decoding response: %w", walleterr.ErrDecode, err)
	}
	if rpcResp.Error != nil {
		return walleterr.WithDetails(
			walleterr.Wrap(walleterr.ErrTxRejected, "%s", rpcResp.Error.Message),
			map[string]string{"rpc_code": fmt.Sprintf("%d", rpcResp.Error.Code)},
		)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%w: decoding result: %w", walleterr.ErrDecode, err)
		}
	}
	return nil
}

type balanceResponse struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

// GetBalance retrieves the confirmed and unconfirmed balance of an
// address via its scripthash.
func (c *Client) GetBalance(ctx context.Context, address string) (*chain.Balance, error) {
	scripthash, err := c.scripthash(address)
	if err != nil {
		return nil, err
	}

	var resp balanceResponse
	if err := c.call(ctx, "blockchain.scripthash.get_balance", []any{scripthash}, &resp); err != nil {
		return nil, err
	}
	if err := chain.ValidateNonNegative("confirmed", resp.Confirmed); err != nil {
		return nil, err
	}

	return &chain.Balance{
		Confirmed:   resp.Confirmed,
		Unconfirmed: resp.Unconfirmed,
	}, nil
}

type unspentResponse struct {
	TxHash string `json:"tx_hash"`
	TxPos  uint32 `json:"tx_pos"`
	Height int64  `json:"height"`
	Value  int64  `json:"value"`
}

// ListUnspent returns the unspent outputs of an address, fetched fresh.
func (c *Client) ListUnspent(ctx context.Context, address string) ([]chain.UTXO, error) {
	scripthash, err := c.scripthash(address)
	if err != nil {
		return nil, err
	}

	var resp []unspentResponse
	if err := c.call(ctx, "blockchain.scripthash.listunspent", []any{scripthash}, &resp); err != nil {
		return nil, err
	}

	utxos := make([]chain.UTXO, 0, len(resp))
	for _, u := range resp {
		if err := chain.ValidateTxID(u.TxHash); err != nil {
			return nil, err
		}
		if err := chain.ValidateNonNegative("value", u.Value); err != nil {
			return nil, err
		}
		utxos = append(utxos, chain.UTXO{
			TxID:   u.TxHash,
			Vout:   u.TxPos,
			Height: u.Height,
			Value:  u.Value,
		})
	}
	return utxos, nil
}

type historyResponse struct {
	TxHash string `json:"tx_hash"`
	Height int64  `json:"height"`
}

// ListTransactions returns the transaction history of an address,
// most recent first.
func (c *Client) ListTransactions(ctx context.Context, address string) ([]chain.TxRef, error) {
	scripthash, err := c.scripthash(address)
	if err != nil {
		return nil, err
	}

	var resp []historyResponse
	if err := c.call(ctx, "blockchain.scripthash.get_history", []any{scripthash}, &resp); err != nil {
		return nil, err
	}

	refs := make([]chain.TxRef, 0, len(resp))
	for i := len(resp) - 1; i >= 0; i-- {
		if err := chain.ValidateTxID(resp[i].TxHash); err != nil {
			return nil, err
		}
		refs = append(refs, chain.TxRef{TxID: resp[i].TxHash, Height: resp[i].Height})
	}
	return refs, nil
}

type scriptPubKeyResponse struct {
	Addresses []string `json:"addresses"`
	Hex       string   `json:"hex"`
	Type      string   `json:"type"`
}

type voutResponse struct {
	Value        json.Number          `json:"value"`
	N            uint32               `json:"n"`
	ScriptPubKey scriptPubKeyResponse `json:"scriptPubKey"`
}

type txVerboseResponse struct {
	TxID          string         `json:"txid"`
	Confirmations int64          `json:"confirmations"`
	Time          int64          `json:"time"`
	Vout          []voutResponse `json:"vout"`
}

// GetTransactionVerbose retrieves a decoded transaction record.
func (c *Client) GetTransactionVerbose(ctx context.Context, txid string) (*chain.TxDetail, error) {
	if err := chain.ValidateTxID(txid); err != nil {
		return nil, err
	}

	var resp txVerboseResponse
	if err := c.call(ctx, "blockchain.transaction.get", []any{txid, true}, &resp); err != nil {
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
		detail.Outputs = append(detail.Outputs, chain.TxOutDetail{
			Value:             value.Int64(),
			Addresses:         vout.ScriptPubKey.Addresses,
			IsReserveTransfer: vout.ScriptPubKey.Type == "cryptocondition",
		})
	}
	return detail, nil
}

// GetRawTransaction retrieves the raw transaction hex.
func (c *Client) GetRawTransaction(ctx context.Context, txid string) (string, error) {
	if err := chain.ValidateTxID(txid); err != nil {
		return "", err
	}

	var raw string
	if err := c.call(ctx, "blockchain.transaction.get", []any{txid, false}, &raw); err != nil {
		return "", err
	}
	if err := chain.ValidateHex(raw); err != nil {
		return "", err
	}
	return raw, nil
}

type headerResponse struct {
	Height int64 `json:"height"`
}

// GetCurrentBlockHeight returns the tip height of the best mirror.
func (c *Client) GetCurrentBlockHeight(ctx context.Context) (int64, error) {
	var resp headerResponse
	if err := c.call(ctx, "blockchain.headers.subscribe", []any{}, &resp); err != nil {
		return 0, err
	}
	if err := chain.ValidateNonNegative("height", resp.Height); err != nil {
		return 0, err
	}
	return resp.Height, nil
}

// EstimateFee returns a fee rate in smallest units per kilobyte for
// confirmation within the given number of blocks. A declined estimate
// (negative upstream value) yields FallbackFeePerKB.
func (c *Client) EstimateFee(ctx context.Context, blocks int) (int64, error) {
	var coinPerKB json.Number
	if err := c.call(ctx, "blockchain.estimatefee", []any{blocks}, &coinPerKB); err != nil {
		return 0, err
	}

	s := coinPerKB.String()
	if len(s) > 0 && s[0] == '-' {
		return FallbackFeePerKB, nil
	}
	rate, err := chain.ParseAmount(s, chain.Decimals)
	if err != nil {
		return 0, fmt.Errorf("%w: fee estimate: %w", walleterr.ErrDecode, err)
	}
	if !rate.IsInt64() || rate.Int64() == 0 {
		return FallbackFeePerKB, nil
	}
	return rate.Int64(), nil
}

// Broadcast submits a signed raw transaction and returns its txid.
func (c *Client) Broadcast(ctx context.Context, rawHex string) (string, error) {
	if err := chain.ValidateHex(rawHex); err != nil {
		return "", err
	}

	var txid string
	if err := c.call(ctx, "blockchain.transaction.broadcast", []any{rawHex}, &txid); err != nil {
		return "", err
	}
	if err := chain.ValidateTxID(txid); err != nil {
		return "", fmt.Errorf("broadcast accepted but returned malformed txid: %w", err)
	}
	return txid, nil
}

func (c *Client) scripthash(address string) (string, error) {
	if err := keychain.ValidateAddress(c.params, address); err != nil {
		return "", err
	}
	return keychain.AddressToScripthash(c.params, address)
}
