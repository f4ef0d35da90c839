package db

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/indexsupply/golden-axe/dbtypes"
)

func InsertBlocks(blocks []*dbtypes.Block, tx *sqlx.Tx) error {
	if len(blocks) == 0 {
		return nil
	}
	var sql strings.Builder
	fmt.Fprint(&sql, `INSERT INTO blocks (chain, num, hash, time) VALUES `)
	argIdx := 0
	args := make([]any, len(blocks)*4)
	for i, block := range blocks {
		if i > 0 {
			fmt.Fprint(&sql, ", ")
		}
		fmt.Fprintf(&sql, "($%v, $%v, $%v, $%v)", argIdx+1, argIdx+2, argIdx+3, argIdx+4)
		args[argIdx] = block.Chain
		args[argIdx+1] = block.Num
		args[argIdx+2] = block.Hash
		args[argIdx+3] = block.Time
		argIdx += 4
	}
	fmt.Fprint(&sql, ` ON CONFLICT (chain, num) DO UPDATE SET hash = excluded.hash, time = excluded.time`)
	_, err := tx.Exec(sql.String(), args...)
	return err
}

func GetChainHeights() ([]*dbtypes.ChainHeight, error) {
	heights := []*dbtypes.ChainHeight{}
	err := ReaderDb.Select(&heights, `SELECT chain, MAX(num) AS num FROM blocks GROUP BY chain ORDER BY chain`)
	if err != nil {
		return nil, err
	}
	return heights, nil
}

func GetBlockHeight(chain uint64) (uint64, error) {
	var num uint64
	err := ReaderDb.Get(&num, `SELECT COALESCE(MAX(num), 0) FROM blocks WHERE chain = $1`, chain)
	if err != nil {
		return 0, err
	}
	return num, nil
}

// DeleteBlock removes a reorged block with its logs and transactions.
func DeleteBlock(chain uint64, num uint64, tx *sqlx.Tx) error {
	if _, err := tx.Exec(`DELETE FROM logs WHERE chain = $1 AND block_num = $2`, chain, num); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM txs WHERE chain = $1 AND block_num = $2`, chain, num); err != nil {
		return err
	}
	_, err := tx.Exec(`DELETE FROM blocks WHERE chain = $1 AND num = $2`, chain, num)
	return err
}
