package verusid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

func newTestClient(t *testing.T, rpcURL string) *Client {
	t.Helper()
	client, err := NewClient(&ClientOptions{RPCURL: rpcURL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}

func TestGetIdentity(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "getidentity", req.Method)
		require.Equal(t, "alice@", req.Params[0])

		_, _ = w.Write([]byte(`{
			"result": {
				"identity": {
					"name": "alice",
					"identityaddress": "iAliceIdentityAddr",
					"primaryaddresses": ["RPrimaryOne", "RPrimaryTwo"],
					"minimumsignatures": 1
				},
				"status": "active",
				"blockheight": 2500000
			},
			"error": null
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	result, err := client.GetIdentity(context.Background(), "alice@")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Identity.Name)
	assert.Equal(t, []string{"RPrimaryOne", "RPrimaryTwo"}, result.Identity.PrimaryAddresses)
	assert.Equal(t, int64(2500000), result.BlockHeight)
}

func TestGetIdentity_Unknown(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"result": null, "error": {"code": -5, "message": "Identity not found"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.GetIdentity(context.Background(), "nobody@")
	require.Error(t, err)
	assert.ErrorIs(t, err, walleterr.ErrNotFound)
}

func TestGetIdentity_MissingPrimaryAddresses(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"result": {"identity": {"name": "x", "identityaddress": "iX", "primaryaddresses": []}},
			"error": null
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.GetIdentity(context.Background(), "x@")
	require.Error(t, err)
	assert.ErrorIs(t, err, walleterr.ErrDecode)
}

func TestGetIdentity_EmptyName(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, "http://unused.invalid")

	_, err := client.GetIdentity(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, walleterr.ErrValidation)
}
