package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvHome        = "VERSO_HOME"
	EnvNetwork     = "VERSO_NETWORK"
	EnvExplorerAPI = "VERSO_EXPLORER_API"
	EnvVerusIDRPC  = "VERSO_VERUSID_RPC"
	EnvAutoLock    = "VERSO_AUTO_LOCK_SECONDS"
	EnvVerbose     = "VERSO_VERBOSE"
	EnvNoColor     = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the
// configuration.
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvNetwork); v != "" {
		cfg.Network = strings.ToLower(v)
	}

	if v := os.Getenv(EnvExplorerAPI); v != "" {
		cfg.Explorer.API = v
	}

	if v := os.Getenv(EnvVerusIDRPC); v != "" {
		cfg.VerusID.RPC = v
	}

	if v := os.Getenv(EnvAutoLock); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Security.AutoLockSeconds = secs
		}
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
