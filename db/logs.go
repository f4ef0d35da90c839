package db

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/indexsupply/golden-axe/dbtypes"
)

func InsertLogs(logs []*dbtypes.Log, tx *sqlx.Tx) error {
	if len(logs) == 0 {
		return nil
	}
	var sql strings.Builder
	fmt.Fprint(&sql, `INSERT INTO logs (chain, block_num, log_idx, address, topic0, topic1, topic2, topic3, data, tx_hash) VALUES `)
	argIdx := 0
	args := make([]any, len(logs)*10)
	for i, log := range logs {
		if i > 0 {
			fmt.Fprint(&sql, ", ")
		}
		fmt.Fprintf(&sql, "($%v, $%v, $%v, $%v, $%v, $%v, $%v, $%v, $%v, $%v)",
			argIdx+1, argIdx+2, argIdx+3, argIdx+4, argIdx+5, argIdx+6, argIdx+7, argIdx+8, argIdx+9, argIdx+10)
		args[argIdx] = log.Chain
		args[argIdx+1] = log.BlockNum
		args[argIdx+2] = log.LogIdx
		args[argIdx+3] = log.Address
		args[argIdx+4] = log.Topic0
		args[argIdx+5] = log.Topic1
		args[argIdx+6] = log.Topic2
		args[argIdx+7] = log.Topic3
		args[argIdx+8] = log.Data
		args[argIdx+9] = log.TxHash
		argIdx += 10
	}
	fmt.Fprint(&sql, ` ON CONFLICT (chain, block_num, log_idx) DO NOTHING`)
	_, err := tx.Exec(sql.String(), args...)
	return err
}
