package utils

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/indexsupply/golden-axe/config"
	"github.com/indexsupply/golden-axe/types"
)

// Config is the globally accessible configuration
var Config *types.Config

// ReadConfig will process a configuration
func ReadConfig(cfg *types.Config, path string) error {
	err := readConfigFile(cfg, path)
	if err != nil {
		return err
	}

	readConfigEnv(cfg)

	// merge defaults for everything the file leaves unset
	var defaults types.Config
	err = yaml.Unmarshal([]byte(config.DefaultConfigYml), &defaults)
	if err != nil {
		return fmt.Errorf("error decoding default config: %v", err)
	}
	err = mergo.Merge(cfg, defaults)
	if err != nil {
		return fmt.Errorf("error merging default config: %v", err)
	}

	if len(cfg.Chains) == 0 {
		return fmt.Errorf("missing chain configuration (need at least 1 chain to serve queries)")
	}
	seen := map[uint64]bool{}
	for _, chain := range cfg.Chains {
		if chain.ChainId == 0 {
			return fmt.Errorf("chain %q has no chainId", chain.Name)
		}
		if seen[chain.ChainId] {
			return fmt.Errorf("chain id %v configured twice", chain.ChainId)
		}
		seen[chain.ChainId] = true
	}

	if cfg.Api.MaxStatementTimeout < cfg.Api.DefaultStatementTimeout {
		cfg.Api.MaxStatementTimeout = cfg.Api.DefaultStatementTimeout
	}

	log.WithFields(log.Fields{
		"chains":           len(cfg.Chains),
		"statementTimeout": cfg.Api.DefaultStatementTimeout,
		"rateLimit":        cfg.Api.DefaultRateLimit,
	}).Infof("did init config")

	return nil
}

func readConfigFile(cfg *types.Config, path string) error {
	if path == "" {
		return yaml.Unmarshal([]byte(config.DefaultConfigYml), cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening config file %v: %v", path, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	err = decoder.Decode(cfg)
	if err != nil {
		return fmt.Errorf("error decoding config file %v: %v", path, err)
	}

	return nil
}

func readConfigEnv(cfg *types.Config) error {
	return envconfig.Process("", cfg)
}

// ChainIds lists the configured chain ids in declaration order.
func ChainIds() []uint64 {
	ids := make([]uint64, 0, len(Config.Chains))
	for _, chain := range Config.Chains {
		ids = append(ids, chain.ChainId)
	}
	return ids
}

// StatementTimeout clamps a requested timeout to the configured bounds,
// falling back to the default when unset.
func StatementTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return Config.Api.DefaultStatementTimeout
	}
	if requested > Config.Api.MaxStatementTimeout {
		return Config.Api.MaxStatementTimeout
	}
	return requested
}
