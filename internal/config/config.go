// Package config loads node configuration from an HCL file, with every
// field except the proof-of-work settings overridable by an SWEFT_*
// environment variable, the way the
// teacher's indexer configuration loads from HCL via hclsimple and the
// environment fills in what the file omits (pkg/indexer/config/ruleset.go,
// cmd/hermes-indexer/main.go loadConfig).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the complete node configuration, spec.md §6 environment
// variable table.
type Config struct {
	Bind      string `hcl:"bind,optional"`
	APIBase   string `hcl:"api_base,optional"`
	DB        string `hcl:"db,optional"`
	NodeID    string `hcl:"node_id,optional"`
	Name      string `hcl:"name,optional"`
	Contact   string `hcl:"contact,optional"`

	BootstrapPeers []string `hcl:"bootstrap_peers,optional"`

	SyncIntervalSecs int `hcl:"sync_interval_secs,optional"`
	MaxPeers         int `hcl:"max_peers,optional"`

	RateLimit float64 `hcl:"rate_limit,optional"`

	ReputationVoteSigmaFactor float64 `hcl:"reputation_vote_sigma_factor,optional"`
	ProbationThreshold        int     `hcl:"probation_threshold,optional"`

	OperatorWebhook string `hcl:"operator_webhook,optional"`

	LogLevel string `hcl:"log_level,optional"`

	PoWRequired    bool `hcl:"pow_required,optional"`
	PoWDifficulty  int  `hcl:"pow_difficulty,optional"`
}

// Defaults returns the configuration defaults applied before a file or the
// environment override them.
func Defaults() Config {
	return Config{
		Bind:                      ":8443",
		APIBase:                   "http://localhost:8443",
		DB:                        "sqlite::memory:",
		SyncIntervalSecs:          30,
		MaxPeers:                  100,
		RateLimit:                 10,
		ReputationVoteSigmaFactor: 1.0,
		ProbationThreshold:        10,
		LogLevel:                  "info",
	}
}

// Load reads path (if non-empty and present) over Defaults(), then applies
// every SWEFT_* environment variable named in spec.md §6 as a final
// override layer.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("SWEFT_BIND"); ok {
		cfg.Bind = v
	}
	if v, ok := os.LookupEnv("SWEFT_API_BASE"); ok {
		cfg.APIBase = v
	}
	if v, ok := os.LookupEnv("SWEFT_DB"); ok {
		cfg.DB = v
	}
	if v, ok := os.LookupEnv("SWEFT_NODE_ID"); ok {
		cfg.NodeID = v
	}
	if v, ok := os.LookupEnv("SWEFT_NAME"); ok {
		cfg.Name = v
	}
	if v, ok := os.LookupEnv("SWEFT_CONTACT"); ok {
		cfg.Contact = v
	}
	if v, ok := os.LookupEnv("SWEFT_BOOTSTRAP_PEERS"); ok {
		cfg.BootstrapPeers = nil
		for _, piece := range strings.Split(v, ",") {
			if piece = strings.TrimSpace(piece); piece != "" {
				cfg.BootstrapPeers = append(cfg.BootstrapPeers, piece)
			}
		}
	}
	if v, ok := os.LookupEnv("SWEFT_SYNC_INTERVAL_SECS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SyncIntervalSecs = n
		}
	}
	if v, ok := os.LookupEnv("SWEFT_MAX_PEERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxPeers = n
		}
	}
	if v, ok := os.LookupEnv("SWEFT_RATE_LIMIT"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit = f
		}
	}
	if v, ok := os.LookupEnv("SWEFT_REPUTATION_VOTE_SIGMA_FACTOR"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ReputationVoteSigmaFactor = f
		}
	}
	if v, ok := os.LookupEnv("SWEFT_PROBATION_THRESHOLD"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ProbationThreshold = n
		}
	}
	if v, ok := os.LookupEnv("SWEFT_OPERATOR_WEBHOOK"); ok {
		cfg.OperatorWebhook = v
	}
	if v, ok := os.LookupEnv("SWEFT_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
}
