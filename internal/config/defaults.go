package config

// DefaultElectrumServers are the default mainnet electrum mirrors.
//
//nolint:gochecknoglobals // Configuration default constant
var DefaultElectrumServers = []string{
	"https://el0.verus.io",
	"https://el1.verus.io",
	"https://el2.verus.io",
}

// DefaultExplorerAPI is the default block explorer API endpoint.
const DefaultExplorerAPI = "https://explorer.verus.io/api"

// DefaultVerusIDRPC is the default identity RPC endpoint.
const DefaultVerusIDRPC = "https://api.verus.services"

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    DefaultHome(),
		Network: "mainnet",
		Electrum: ElectrumConfig{
			Servers:        DefaultElectrumServers,
			TimeoutSeconds: 15,
		},
		Explorer: ExplorerConfig{
			API: DefaultExplorerAPI,
		},
		VerusID: VerusIDConfig{
			RPC: DefaultVerusIDRPC,
		},
		Security: SecurityConfig{
			AutoLockSeconds: 300,
			MemoryLock:      true,
		},
		Consent: ConsentConfig{
			TrustedOrigins: []string{"verso-cli"},
		},
		Output: OutputConfig{
			Format:  "auto",
			Color:   "auto",
			Verbose: false,
		},
	}
}
