// Package verusid provides a JSON-RPC client for identity lookups
// against a Verus daemon or public RPC gateway.
package verusid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 4 << 20
)

// Identity is an on-chain identity record. PrimaryAddresses are the
// transparent addresses whose keys may sign on the identity's behalf.
type Identity struct {
	Name              string   `json:"name"`
	IdentityAddress   string   `json:"identityaddress"`
	Parent            string   `json:"parent"`
	PrimaryAddresses  []string `json:"primaryaddresses"`
	MinimumSignatures int      `json:"minimumsignatures"`
	RevocationAuth    string   `json:"revocationauthority"`
	RecoveryAuth      string   `json:"recoveryauthority"`
}

// IdentityResult is the full getidentity response.
type IdentityResult struct {
	Identity    Identity `json:"identity"`
	Status      string   `json:"status"`
	BlockHeight int64    `json:"blockheight"`
}

// ClientOptions contains optional configuration for the verusid client.
type ClientOptions struct {
	// RPCURL is the daemon or gateway endpoint.
	RPCURL string

	// Timeout overrides the per-request timeout.
	Timeout time.Duration
}

// Client provides identity queries over JSON-RPC.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	reqID      atomic.Uint64
}

// NewClient creates a new verusid client.
func NewClient(opts *ClientOptions) (*Client, error) {
	if opts == nil || opts.RPCURL == "" {
		return nil, walleterr.WithSuggestion(
			walleterr.New("NO_RPC_URL", "no identity RPC endpoint configured"),
			"set the RPC URL in the configuration",
		)
	}

	timeout := defaultTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	return &Client{
		rpcURL: opts.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "1.0",
		"id":      c.reqID.Add(1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", walleterr.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", walleterr.ErrNetwork, err)
	}

	// Daemons return RPC errors with non-200 statuses; decode the body
	// first so the RPC error message wins over the raw status code.
	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: status %d", walleterr.ErrNetwork, resp.StatusCode)
		}
		return fmt.Errorf("%w: decoding response: %w", walleterr.ErrDecode, err)
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Code == -5 { // daemon code for unknown identity
			return walleterr.Wrap(walleterr.ErrNotFound, "%s", rpcResp.Error.Message)
		}
		return walleterr.New("RPC_ERROR", rpcResp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%w: decoding result: %w", walleterr.ErrDecode, err)
		}
	}
	return nil
}

// GetIdentity resolves an identity by name ("user@") or i-address.
func (c *Client) GetIdentity(ctx context.Context, nameOrAddress string) (*IdentityResult, error) {
	if nameOrAddress == "" {
		return nil, walleterr.Wrap(walleterr.ErrValidation, "identity name required")
	}

	var result IdentityResult
	if err := c.call(ctx, "getidentity", []any{nameOrAddress}, &result); err != nil {
		return nil, err
	}
	if result.Identity.IdentityAddress == "" || len(result.Identity.PrimaryAddresses) == 0 {
		return nil, walleterr.WithDetails(walleterr.ErrDecode, map[string]string{
			"field": "identity",
		})
	}
	return &result, nil
}

// GetIdentitiesControllingAddress lists the identities whose primary
// addresses include the given transparent address.
func (c *Client) GetIdentitiesControllingAddress(ctx context.Context, address string) ([]IdentityResult, error) {
	if address == "" {
		return nil, walleterr.Wrap(walleterr.ErrValidation, "address required")
	}

	var results []IdentityResult
	if err := c.call(ctx, "getidentitieswithaddress", []any{map[string]any{"address": address}}, &results); err != nil {
		return nil, err
	}
	return results, nil
}
