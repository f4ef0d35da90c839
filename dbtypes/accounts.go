package dbtypes

// ApiAccount carries the per key execution limits. Zero values fall back
// to the configured defaults.
type ApiAccount struct {
	Key                string `db:"key"`
	Name               string `db:"name"`
	RateLimit          uint32 `db:"rate_limit"` // requests per second
	StatementTimeoutMs uint32 `db:"statement_timeout_ms"`
	MaxConnections     uint32 `db:"max_connections"` // concurrent live queries
	Disabled           bool   `db:"disabled"`
	Created            uint64 `db:"created"`
}
