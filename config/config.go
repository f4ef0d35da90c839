package config

import (
	_ "embed"
)

// service defaults
//
//go:embed default.config.yml
var DefaultConfigYml string
