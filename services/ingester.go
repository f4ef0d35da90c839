package services

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/indexsupply/golden-axe/db"
	"github.com/indexsupply/golden-axe/dbtypes"
	cfgtypes "github.com/indexsupply/golden-axe/types"
	"github.com/indexsupply/golden-axe/utils"
)

var (
	ingestedBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "golden_axe_ingested_blocks_total",
		Help: "Blocks written per chain",
	}, []string{"chain"})
	ingestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "golden_axe_ingest_errors_total",
		Help: "Ingestion failures per chain",
	}, []string{"chain"})
)

// chainIngester polls one execution client and writes blocks, transactions
// and logs. It is intentionally simple: sequential blocks, re-fetch on
// parent hash mismatch one block back.
type chainIngester struct {
	chain    uint64
	client   *ethclient.Client
	logger   logrus.FieldLogger
	lastHash []byte
}

// StartIndexer launches one ingester per configured chain. It is a no-op
// when indexing is disabled, which is the mode used when another process
// owns the tables.
func StartIndexer(ctx context.Context, logger logrus.FieldLogger) error {
	if !utils.Config.Indexer.Enabled {
		return nil
	}
	for _, chainCfg := range utils.Config.Chains {
		client, err := ethclient.DialContext(ctx, chainCfg.RpcUrl)
		if err != nil {
			return err
		}
		ingester := &chainIngester{
			chain:  chainCfg.ChainId,
			client: client,
			logger: logger.WithField("module", "ingester").WithField("chain", chainCfg.ChainId),
		}
		go ingester.run(ctx, chainCfg)
	}
	return nil
}

func (ing *chainIngester) run(ctx context.Context, cfg cfgtypes.ChainConfig) {
	defer utils.HandleSubroutinePanic("ingester.run")
	interval := utils.Config.Indexer.PollInterval
	if interval == 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	startBlock := cfg.StartBlock
	if startBlock == 0 {
		startBlock = utils.Config.Indexer.StartBlock
	}
	for {
		if err := ing.poll(ctx, startBlock); err != nil {
			ingestErrors.WithLabelValues(chainLabel(ing.chain)).Inc()
			ing.logger.WithError(err).Error("ingest poll failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll ingests up to BatchSize blocks past the stored height.
func (ing *chainIngester) poll(ctx context.Context, startBlock uint64) error {
	head, err := ing.client.BlockNumber(ctx)
	if err != nil {
		return err
	}
	stored, err := db.GetBlockHeight(ing.chain)
	if err != nil {
		return err
	}
	next := stored + 1
	if stored == 0 && startBlock > 0 {
		next = startBlock
	}
	batchSize := utils.Config.Indexer.BatchSize
	if batchSize == 0 {
		batchSize = 64
	}
	for i := uint64(0); i < batchSize && next <= head; i++ {
		advanced, err := ing.ingestBlock(ctx, next)
		if err != nil {
			return err
		}
		if !advanced {
			// reorg, the previous block was deleted; the next poll
			// resumes from the stored height
			return nil
		}
		GlobalBlockFeed.Advance(ing.chain, next)
		next++
	}
	return nil
}

// ingestBlock fetches and stores one block. Returns false when the parent
// hash did not match the stored predecessor; in that case the stored
// block is deleted and the caller retries at the same height minus one.
func (ing *chainIngester) ingestBlock(ctx context.Context, num uint64) (bool, error) {
	block, err := ing.client.BlockByNumber(ctx, new(big.Int).SetUint64(num))
	if err != nil {
		return false, err
	}
	if ing.lastHash != nil && num > 0 {
		parent := block.ParentHash().Bytes()
		if string(parent) != string(ing.lastHash) {
			ing.logger.WithField("num", num-1).Warn("parent hash mismatch, rolling back one block")
			if err := ing.rollback(num - 1); err != nil {
				return false, err
			}
			ing.lastHash = nil
			return false, nil
		}
	}

	logs, err := ing.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: block.Number(),
		ToBlock:   block.Number(),
	})
	if err != nil {
		return false, err
	}

	dbBlock := &dbtypes.Block{
		Chain: ing.chain,
		Num:   num,
		Hash:  block.Hash().Bytes(),
		Time:  block.Time(),
	}
	dbTxs, err := ing.convertTxs(block)
	if err != nil {
		return false, err
	}
	dbLogs := convertLogs(ing.chain, logs)

	err = ing.withTx(func(tx *sqlx.Tx) error {
		if err := db.InsertBlocks([]*dbtypes.Block{dbBlock}, tx); err != nil {
			return err
		}
		if len(dbTxs) > 0 {
			if err := db.InsertTxs(dbTxs, tx); err != nil {
				return err
			}
		}
		if len(dbLogs) > 0 {
			return db.InsertLogs(dbLogs, tx)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	ing.lastHash = dbBlock.Hash
	ingestedBlocks.WithLabelValues(chainLabel(ing.chain)).Inc()
	return true, nil
}

func (ing *chainIngester) rollback(num uint64) error {
	return ing.withTx(func(tx *sqlx.Tx) error {
		return db.DeleteBlock(ing.chain, num, tx)
	})
}

func (ing *chainIngester) withTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := db.WriterDb.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (ing *chainIngester) convertTxs(block *types.Block) ([]*dbtypes.Tx, error) {
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(ing.chain))
	out := make([]*dbtypes.Tx, 0, len(block.Transactions()))
	for idx, tx := range block.Transactions() {
		from, err := types.Sender(signer, tx)
		if err != nil {
			return nil, err
		}
		dbTx := &dbtypes.Tx{
			Chain:    ing.chain,
			BlockNum: block.NumberU64(),
			Idx:      uint32(idx),
			Hash:     tx.Hash().Bytes(),
			From:     from.Bytes(),
			Input:    tx.Data(),
			Value:    tx.Value().String(),
		}
		if to := tx.To(); to != nil {
			dbTx.To = to.Bytes()
		}
		out = append(out, dbTx)
	}
	return out, nil
}

func convertLogs(chain uint64, logs []types.Log) []*dbtypes.Log {
	out := make([]*dbtypes.Log, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		dbLog := &dbtypes.Log{
			Chain:    chain,
			BlockNum: log.BlockNumber,
			LogIdx:   uint32(log.Index),
			Address:  log.Address.Bytes(),
			Data:     log.Data,
			TxHash:   log.TxHash.Bytes(),
		}
		topics := [][]byte{}
		for _, topic := range log.Topics {
			topics = append(topics, topic.Bytes())
		}
		if len(topics) > 0 {
			dbLog.Topic0 = topics[0]
		}
		if len(topics) > 1 {
			dbLog.Topic1 = topics[1]
		}
		if len(topics) > 2 {
			dbLog.Topic2 = topics[2]
		}
		if len(topics) > 3 {
			dbLog.Topic3 = topics[3]
		}
		out = append(out, dbLog)
	}
	return out
}
