package electrum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verso-wallet/verso/internal/keychain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

const testTxID = "aa11bb22cc33dd44ee55ff667788990011223344556677889900aabbccddeeff"

// testAddress derives a valid mainnet address for client calls.
func testAddress(t *testing.T) string {
	t.Helper()
	hash := make([]byte, 20)
	for i := range hash {
		hash[i] = byte(i + 1)
	}
	return keychain.EncodeP2PKHAddress(keychain.MainNetParams, hash)
}

// rpcServer returns an httptest server answering each JSON-RPC method
// with the configured result.
func rpcServer(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, ok := results[req.Method]
		if !ok {
			http.Error(w, "unknown method", http.StatusBadRequest)
			return
		}
		raw, err := json.Marshal(result)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     req.ID,
			"result": json.RawMessage(raw),
		})
	}))
}

func newTestClient(t *testing.T, servers ...string) *Client {
	t.Helper()
	client, err := NewClient(&ClientOptions{
		Servers: servers,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresServers(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil)
	require.Error(t, err)

	_, err = NewClient(&ClientOptions{})
	require.Error(t, err)
}

func TestGetBalance(t *testing.T) {
	t.Parallel()

	server := rpcServer(t, map[string]any{
		"blockchain.scripthash.get_balance": balanceResponse{Confirmed: 150_000_000, Unconfirmed: 25},
	})
	defer server.Close()

	client := newTestClient(t, server.URL)

	balance, err := client.GetBalance(context.Background(), testAddress(t))
	require.NoError(t, err)
	assert.Equal(t, int64(150_000_000), balance.Confirmed)
	assert.Equal(t, int64(25), balance.Unconfirmed)
}

func TestGetBalance_InvalidAddress(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, "http://unused.invalid")

	_, err := client.GetBalance(context.Background(), "not-an-address")
	require.Error(t, err)
	assert.ErrorIs(t, err, walleterr.ErrInvalidAddress)
}

func TestListUnspent(t *testing.T) {
	t.Parallel()

	server := rpcServer(t, map[string]any{
		"blockchain.scripthash.listunspent": []unspentResponse{
			{TxHash: testTxID, TxPos: 1, Height: 2_500_000, Value: 50_000_000},
			{TxHash: testTxID, TxPos: 0, Height: 0, Value: 3_000_000},
		},
	})
	defer server.Close()

	client := newTestClient(t, server.URL)

	utxos, err := client.ListUnspent(context.Background(), testAddress(t))
	require.NoError(t, err)
	require.Len(t, utxos, 2)
	assert.Equal(t, uint32(1), utxos[0].Vout)
	assert.Equal(t, int64(50_000_000), utxos[0].Value)
	assert.Equal(t, int64(0), utxos[1].Height)
}

func TestListUnspent_RejectsMalformedTxID(t *testing.T) {
	t.Parallel()

	server := rpcServer(t, map[string]any{
		"blockchain.scripthash.listunspent": []unspentResponse{
			{TxHash: "zz", TxPos: 0, Height: 1, Value: 1},
		},
	})
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.ListUnspent(context.Background(), testAddress(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, walleterr.ErrDecode)
}

func TestListTransactions_MostRecentFirst(t *testing.T) {
	t.Parallel()

	oldTx := strings.Repeat("a", 64)
	newTx := strings.Repeat("b", 64)
	server := rpcServer(t, map[string]any{
		"blockchain.scripthash.get_history": []historyResponse{
			{TxHash: oldTx, Height: 100},
			{TxHash: newTx, Height: 200},
		},
	})
	defer server.Close()

	client := newTestClient(t, server.URL)

	refs, err := client.ListTransactions(context.Background(), testAddress(t))
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, newTx, refs[0].TxID)
	assert.Equal(t, oldTx, refs[1].TxID)
}

func TestGetTransactionVerbose(t *testing.T) {
	t.Parallel()

	server := rpcServer(t, map[string]any{
		"blockchain.transaction.get": txVerboseResponse{
			TxID:          testTxID,
			Confirmations: 12,
			Time:          1_700_000_000,
			Vout: []voutResponse{
				{Value: json.Number("1.5"), N: 0, ScriptPubKey: scriptPubKeyResponse{
					Addresses: []string{"RAddr"}, Type: "pubkeyhash",
				}},
				{Value: json.Number("0.0002"), N: 1, ScriptPubKey: scriptPubKeyResponse{
					Type: "cryptocondition",
				}},
			},
		},
	})
	defer server.Close()

	client := newTestClient(t, server.URL)

	detail, err := client.GetTransactionVerbose(context.Background(), testTxID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), detail.Confirmations)
	require.Len(t, detail.Outputs, 2)
	assert.Equal(t, int64(150_000_000), detail.Outputs[0].Value)
	assert.False(t, detail.Outputs[0].IsReserveTransfer)
	assert.Equal(t, int64(20_000), detail.Outputs[1].Value)
	assert.True(t, detail.Outputs[1].IsReserveTransfer)
}

func TestGetTransactionVerbose_TxIDMismatch(t *testing.T) {
	t.Parallel()

	server := rpcServer(t, map[string]any{
		"blockchain.transaction.get": txVerboseResponse{TxID: strings.Repeat("c", 64)},
	})
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.GetTransactionVerbose(context.Background(), testTxID)
	require.Error(t, err)
	assert.ErrorIs(t, err, walleterr.ErrDecode)
}

func TestEstimateFee(t *testing.T) {
	t.Parallel()

	t.Run("positive estimate converted to smallest units", func(t *testing.T) {
		t.Parallel()

		server := rpcServer(t, map[string]any{
			"blockchain.estimatefee": json.Number("0.0001"),
		})
		defer server.Close()

		client := newTestClient(t, server.URL)

		rate, err := client.EstimateFee(context.Background(), 6)
		require.NoError(t, err)
		assert.Equal(t, int64(10_000), rate)
	})

	t.Run("negative estimate falls back", func(t *testing.T) {
		t.Parallel()

		server := rpcServer(t, map[string]any{
			"blockchain.estimatefee": json.Number("-1"),
		})
		defer server.Close()

		client := newTestClient(t, server.URL)

		rate, err := client.EstimateFee(context.Background(), 6)
		require.NoError(t, err)
		assert.Equal(t, int64(FallbackFeePerKB), rate)
	})
}

func TestBroadcast(t *testing.T) {
	t.Parallel()

	t.Run("returns txid", func(t *testing.T) {
		t.Parallel()

		server := rpcServer(t, map[string]any{
			"blockchain.transaction.broadcast": testTxID,
		})
		defer server.Close()

		client := newTestClient(t, server.URL)

		txid, err := client.Broadcast(context.Background(), "0400008085202f89")
		require.NoError(t, err)
		assert.Equal(t, testTxID, txid)
	})

	t.Run("rpc error surfaces as rejection", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":    1,
				"error": map[string]any{"code": -26, "message": "bad-txns-inputs-missingorspent"},
			})
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		_, err := client.Broadcast(context.Background(), "0400008085202f89")
		require.Error(t, err)
		assert.ErrorIs(t, err, walleterr.ErrTxRejected)
	})

	t.Run("rejection message with format verbs is kept verbatim", func(t *testing.T) {
		t.Parallel()

		const upstream = "66: min relay fee not met, 0 < 100%s"
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":    1,
				"error": map[string]any{"code": -26, "message": upstream},
			})
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		_, err := client.Broadcast(context.Background(), "0400008085202f89")
		require.ErrorIs(t, err, walleterr.ErrTxRejected)
		assert.Contains(t, err.Error(), upstream)
	})
}

func TestFailover(t *testing.T) {
	t.Parallel()

	t.Run("falls through dead mirror to healthy one", func(t *testing.T) {
		t.Parallel()

		dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer dead.Close()

		healthy := rpcServer(t, map[string]any{
			"blockchain.headers.subscribe": headerResponse{Height: 2_600_000},
		})
		defer healthy.Close()

		client := newTestClient(t, dead.URL, healthy.URL)

		// Both rotation orders must succeed.
		for j := 0; j < 3; j++ {
			height, err := client.GetCurrentBlockHeight(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int64(2_600_000), height)
		}
	})

	t.Run("all mirrors dead surfaces last error", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer dead.Close()

		client := newTestClient(t, dead.URL, dead.URL)

		_, err := client.GetCurrentBlockHeight(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, walleterr.ErrNetwork)
		assert.Equal(t, int32(2), hits.Load())
	})
}
