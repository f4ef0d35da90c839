package db

import (
	"github.com/jmoiron/sqlx"

	"github.com/indexsupply/golden-axe/dbtypes"
)

func GetApiAccounts() ([]*dbtypes.ApiAccount, error) {
	accounts := []*dbtypes.ApiAccount{}
	err := ReaderDb.Select(&accounts, `
		SELECT key, name, rate_limit, statement_timeout_ms, max_connections, disabled, created
		FROM api_accounts`)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func UpsertApiAccount(account *dbtypes.ApiAccount, tx *sqlx.Tx) error {
	_, err := tx.Exec(`
		INSERT INTO api_accounts (key, name, rate_limit, statement_timeout_ms, max_connections, disabled, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			name = excluded.name,
			rate_limit = excluded.rate_limit,
			statement_timeout_ms = excluded.statement_timeout_ms,
			max_connections = excluded.max_connections,
			disabled = excluded.disabled`,
		account.Key, account.Name, account.RateLimit, account.StatementTimeoutMs,
		account.MaxConnections, account.Disabled, account.Created)
	return err
}
