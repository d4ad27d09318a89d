package consent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

func TestValidateCallbackURL(t *testing.T) {
	t.Parallel()

	// IP literals avoid DNS in tests; 93.184.216.34 is public.
	tests := []struct {
		name   string
		url    string
		origin string
		wantOK bool
	}{
		{"public ip matching origin", "https://93.184.216.34/cb", "93.184.216.34", true},
		{"no origin restriction", "https://93.184.216.34/cb", "", true},
		{"plain http", "http://93.184.216.34/cb", "93.184.216.34", false},
		{"no scheme", "93.184.216.34/cb", "93.184.216.34", false},
		{"bare hostname", "https://localhost/cb", "localhost", false},
		{"loopback", "https://127.0.0.1/cb", "127.0.0.1", false},
		{"private 10/8", "https://10.1.2.3/cb", "10.1.2.3", false},
		{"private 172.16/12", "https://172.16.0.9/cb", "172.16.0.9", false},
		{"private 192.168/16", "https://192.168.1.1/cb", "192.168.1.1", false},
		{"link local", "https://169.254.169.254/cb", "169.254.169.254", false},
		{"carrier nat", "https://100.64.0.1/cb", "100.64.0.1", false},
		{"documentation range", "https://192.0.2.10/cb", "192.0.2.10", false},
		{"ipv6 loopback", "https://[::1]/cb", "::1", false},
		{"ipv6 unique local", "https://[fc00::1]/cb", "fc00::1", false},
		{"origin mismatch", "https://93.184.216.34/cb", "198.18.0.1", false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateCallbackURL(tc.url, tc.origin)
			if tc.wantOK {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, walleterr.ErrValidation)
			}
		})
	}
}

func TestHostMatchesOrigin(t *testing.T) {
	t.Parallel()

	assert.True(t, hostMatchesOrigin("dapp.example", "dapp.example"))
	assert.True(t, hostMatchesOrigin("api.dapp.example", "dapp.example"))
	assert.True(t, hostMatchesOrigin("Dapp.Example.", "dapp.example"))

	// Suffix tricks do not count as subdomains.
	assert.False(t, hostMatchesOrigin("evildapp.example", "dapp.example"))
	assert.False(t, hostMatchesOrigin("dapp.example.evil.net", "dapp.example"))
	assert.False(t, hostMatchesOrigin("other.example", "dapp.example"))
}
