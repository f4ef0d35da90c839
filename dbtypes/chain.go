package dbtypes

type Block struct {
	Chain uint64 `db:"chain"`
	Num   uint64 `db:"num"`
	Hash  []byte `db:"hash"`
	Time  uint64 `db:"time"`
}

type Log struct {
	Chain    uint64 `db:"chain"`
	BlockNum uint64 `db:"block_num"`
	LogIdx   uint32 `db:"log_idx"`
	Address  []byte `db:"address"`
	Topic0   []byte `db:"topic0"`
	Topic1   []byte `db:"topic1"`
	Topic2   []byte `db:"topic2"`
	Topic3   []byte `db:"topic3"`
	Data     []byte `db:"data"`
	TxHash   []byte `db:"tx_hash"`
}

type Tx struct {
	Chain    uint64 `db:"chain"`
	BlockNum uint64 `db:"block_num"`
	Idx      uint32 `db:"idx"`
	Hash     []byte `db:"hash"`
	From     []byte `db:"from"`
	To       []byte `db:"to"` // nil for contract creations
	Input    []byte `db:"input"`
	Value    string `db:"value"` // wei, numeric
}

// ChainHeight is the highest ingested block per chain.
type ChainHeight struct {
	Chain uint64 `db:"chain"`
	Num   uint64 `db:"num"`
}
