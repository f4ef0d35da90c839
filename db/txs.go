package db

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/indexsupply/golden-axe/dbtypes"
)

func InsertTxs(txs []*dbtypes.Tx, tx *sqlx.Tx) error {
	if len(txs) == 0 {
		return nil
	}
	var sql strings.Builder
	fmt.Fprint(&sql, `INSERT INTO txs (chain, block_num, idx, hash, "from", "to", input, value) VALUES `)
	argIdx := 0
	args := make([]any, len(txs)*8)
	for i, t := range txs {
		if i > 0 {
			fmt.Fprint(&sql, ", ")
		}
		fmt.Fprintf(&sql, "($%v, $%v, $%v, $%v, $%v, $%v, $%v, $%v)",
			argIdx+1, argIdx+2, argIdx+3, argIdx+4, argIdx+5, argIdx+6, argIdx+7, argIdx+8)
		args[argIdx] = t.Chain
		args[argIdx+1] = t.BlockNum
		args[argIdx+2] = t.Idx
		args[argIdx+3] = t.Hash
		args[argIdx+4] = t.From
		args[argIdx+5] = t.To
		args[argIdx+6] = t.Input
		args[argIdx+7] = t.Value
		argIdx += 8
	}
	fmt.Fprint(&sql, ` ON CONFLICT (chain, block_num, idx) DO NOTHING`)
	_, err := tx.Exec(sql.String(), args...)
	return err
}
