package types

import "time"

// Config is a struct to hold the configuration data
type Config struct {
	Logging struct {
		OutputLevel  string `yaml:"outputLevel" envconfig:"LOGGING_OUTPUT_LEVEL"`
		OutputStderr bool   `yaml:"outputStderr" envconfig:"LOGGING_OUTPUT_STDERR"`

		FilePath  string `yaml:"filePath" envconfig:"LOGGING_FILE_PATH"`
		FileLevel string `yaml:"fileLevel" envconfig:"LOGGING_FILE_LEVEL"`
	} `yaml:"logging"`

	Server struct {
		Host string `yaml:"host" envconfig:"SERVER_HOST"`
		Port string `yaml:"port" envconfig:"SERVER_PORT"`

		HttpReadTimeout  time.Duration `yaml:"httpReadTimeout" envconfig:"SERVER_HTTP_READ_TIMEOUT"`
		HttpWriteTimeout time.Duration `yaml:"httpWriteTimeout" envconfig:"SERVER_HTTP_WRITE_TIMEOUT"`
		HttpIdleTimeout  time.Duration `yaml:"httpIdleTimeout" envconfig:"SERVER_HTTP_IDLE_TIMEOUT"`
	} `yaml:"server"`

	Chains []ChainConfig `yaml:"chains"`

	Indexer struct {
		Enabled      bool          `yaml:"enabled" envconfig:"INDEXER_ENABLED"`
		PollInterval time.Duration `yaml:"pollInterval" envconfig:"INDEXER_POLL_INTERVAL"`
		BatchSize    uint64        `yaml:"batchSize" envconfig:"INDEXER_BATCH_SIZE"`
		StartBlock   uint64        `yaml:"startBlock" envconfig:"INDEXER_START_BLOCK"`
	} `yaml:"indexer"`

	Api struct {
		CorsOrigins []string `yaml:"corsOrigins" envconfig:"API_CORS_ORIGINS"`
		RequireAuth bool     `yaml:"requireAuth" envconfig:"API_REQUIRE_AUTH"`

		DefaultRateLimit      uint `yaml:"defaultRateLimit" envconfig:"API_DEFAULT_RATE_LIMIT"`
		DefaultRateLimitBurst uint `yaml:"defaultRateLimitBurst" envconfig:"API_DEFAULT_RATE_LIMIT_BURST"`
		DefaultMaxConnections uint `yaml:"defaultMaxConnections" envconfig:"API_DEFAULT_MAX_CONNECTIONS"`

		DefaultStatementTimeout time.Duration `yaml:"defaultStatementTimeout" envconfig:"API_DEFAULT_STATEMENT_TIMEOUT"`
		MaxStatementTimeout     time.Duration `yaml:"maxStatementTimeout" envconfig:"API_MAX_STATEMENT_TIMEOUT"`

		AccountsRefreshInterval time.Duration `yaml:"accountsRefreshInterval" envconfig:"API_ACCOUNTS_REFRESH_INTERVAL"`

		MaxQueryLength uint `yaml:"maxQueryLength" envconfig:"API_MAX_QUERY_LENGTH"`
		MaxSignatures  uint `yaml:"maxSignatures" envconfig:"API_MAX_SIGNATURES"`
		PlanCacheSize  int  `yaml:"planCacheSize" envconfig:"API_PLAN_CACHE_SIZE"`
	} `yaml:"api"`

	RateLimit struct {
		Enabled    bool `yaml:"enabled" envconfig:"RATELIMIT_ENABLED"`
		ProxyCount uint `yaml:"proxyCount" envconfig:"RATELIMIT_PROXY_COUNT"`
		Rate       uint `yaml:"rate" envconfig:"RATELIMIT_RATE"`
		Burst      uint `yaml:"burst" envconfig:"RATELIMIT_BURST"`
	} `yaml:"rateLimit"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" envconfig:"METRICS_ENABLED"`
		Host    string `yaml:"host" envconfig:"METRICS_HOST"`
		Port    string `yaml:"port" envconfig:"METRICS_PORT"`
	} `yaml:"metrics"`

	Database struct {
		Pgsql       PgsqlDatabaseConfig `yaml:"pgsql"`
		PgsqlWriter PgsqlDatabaseConfig `yaml:"pgsqlWriter"`
	} `yaml:"database"`
}

// ChainConfig describes one chain the service indexes and serves.
type ChainConfig struct {
	ChainId uint64 `yaml:"chainId"`
	Name    string `yaml:"name"`
	RpcUrl  string `yaml:"rpcUrl"`

	// StartBlock overrides the global indexer start block for this chain.
	StartBlock uint64 `yaml:"startBlock"`
}

type PgsqlDatabaseConfig struct {
	Username     string `yaml:"user" envconfig:"DATABASE_PGSQL_USERNAME"`
	Password     string `yaml:"password" envconfig:"DATABASE_PGSQL_PASSWORD"`
	Name         string `yaml:"name" envconfig:"DATABASE_PGSQL_NAME"`
	Host         string `yaml:"host" envconfig:"DATABASE_PGSQL_HOST"`
	Port         string `yaml:"port" envconfig:"DATABASE_PGSQL_PORT"`
	MaxOpenConns int    `yaml:"maxOpenConns" envconfig:"DATABASE_PGSQL_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"maxIdleConns" envconfig:"DATABASE_PGSQL_MAX_IDLE_CONNS"`
}
