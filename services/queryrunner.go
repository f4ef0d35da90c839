package services

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/indexsupply/golden-axe/abi"
	"github.com/indexsupply/golden-axe/db"
	"github.com/indexsupply/golden-axe/query"
	"github.com/indexsupply/golden-axe/utils"
)

// QueryRequest is one statement of a batch: the source query plus the
// event or function signatures it references.
type QueryRequest struct {
	SQL        string   `json:"sql"`
	Signatures []string `json:"signatures"`
}

// QueryResult holds the decoded rows of one statement.
type QueryResult struct {
	Columns []query.OutputColumn `json:"columns"`
	Rows    [][]any              `json:"rows"`
}

// BatchResult is the outcome of a batch executed against one snapshot.
// Cursor is the position a follow-up request should resume from.
type BatchResult struct {
	Results []*QueryResult    `json:"results"`
	Heights map[uint64]uint64 `json:"-"`
	Cursor  string            `json:"cursor"`
}

var (
	queryCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "golden_axe_queries_total",
		Help: "Executed query statements by outcome",
	}, []string{"status"})
	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "golden_axe_query_duration_seconds",
		Help:    "Wall time per query batch",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})
)

func checkRequests(requests []QueryRequest) error {
	if len(requests) == 0 {
		return query.NewError(query.ErrValidation, "empty batch")
	}
	cfg := &utils.Config.Api
	for _, req := range requests {
		if cfg.MaxQueryLength > 0 && uint(len(req.SQL)) > cfg.MaxQueryLength {
			return query.NewError(query.ErrValidation, "query exceeds maximum length of %d", cfg.MaxQueryLength)
		}
		if cfg.MaxSignatures > 0 && uint(len(req.Signatures)) > cfg.MaxSignatures {
			return query.NewError(query.ErrValidation, "too many signatures, maximum is %d", cfg.MaxSignatures)
		}
	}
	return nil
}

// RunQueryBatch compiles and executes all statements of a batch inside a
// single repeatable read snapshot and returns the rows together with the
// cursor moved to the snapshot's chain heights.
func RunQueryBatch(ctx context.Context, requests []QueryRequest, chains []uint64, cursor query.Cursor, timeout time.Duration) (*BatchResult, error) {
	if err := checkRequests(requests); err != nil {
		return nil, err
	}
	plans := make([]*query.CompiledQuery, len(requests))
	for i, req := range requests {
		plan, err := GlobalPlanCache.Compile(req.SQL, req.Signatures, query.Options{
			Chains: chains,
			Cursor: cursor,
		})
		if err != nil {
			queryCounter.WithLabelValues("compile_error").Inc()
			return nil, err
		}
		plans[i] = plan
	}

	start := time.Now()
	defer func() {
		queryDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := db.ReaderDb.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return nil, classifyDbError(err)
	}
	defer tx.Rollback()

	if timeout > 0 {
		_, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds()))
		if err != nil {
			return nil, classifyDbError(err)
		}
	}

	heights, err := snapshotHeights(ctx, tx, plans)
	if err != nil {
		return nil, classifyDbError(err)
	}
	next := cursor.Merge(heights)

	batch := &BatchResult{
		Results: make([]*QueryResult, len(plans)),
		Heights: heights,
		Cursor:  next.String(),
	}
	for i, plan := range plans {
		result, err := runPlan(ctx, tx, plan)
		if err != nil {
			queryCounter.WithLabelValues("error").Inc()
			return nil, err
		}
		queryCounter.WithLabelValues("ok").Inc()
		batch.Results[i] = result
	}
	return batch, nil
}

type dbQuerier interface {
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
}

func runPlan(ctx context.Context, tx dbQuerier, plan *query.CompiledQuery) (*QueryResult, error) {
	rows, err := tx.QueryxContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, classifyDbError(err)
	}
	defer rows.Close()

	result := &QueryResult{
		Columns: plan.Columns,
		Rows:    [][]any{},
	}
	for rows.Next() {
		raw, err := rows.SliceScan()
		if err != nil {
			return nil, classifyDbError(err)
		}
		row := make([]any, len(raw))
		for i, cell := range raw {
			var col *query.OutputColumn
			if i < len(plan.Columns) {
				col = &plan.Columns[i]
			}
			row[i], err = encodeCell(cell, col)
			if err != nil {
				return nil, err
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyDbError(err)
	}
	return result, nil
}

// snapshotHeights reads the current tip of every chain touched by the
// batch from the same transaction the statements run in, so the returned
// cursor is exact for the data the caller saw.
func snapshotHeights(ctx context.Context, tx dbQuerier, plans []*query.CompiledQuery) (map[uint64]uint64, error) {
	chainSet := map[uint64]bool{}
	for _, plan := range plans {
		for _, chain := range plan.Chains {
			chainSet[chain] = true
		}
	}
	var sb strings.Builder
	sb.WriteString("SELECT chain, MAX(num) FROM blocks WHERE chain IN (")
	first := true
	for chain := range chainSet {
		if !first {
			sb.WriteString(",")
		}
		first = false
		fmt.Fprintf(&sb, "%d", chain)
	}
	sb.WriteString(") GROUP BY chain")

	rows, err := tx.QueryxContext(ctx, sb.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	heights := map[uint64]uint64{}
	for rows.Next() {
		var chain, num uint64
		if err := rows.Scan(&chain, &num); err != nil {
			return nil, err
		}
		heights[chain] = num
	}
	return heights, rows.Err()
}

// encodeCell converts one scanned value into its wire representation:
// bytes as 0x-prefixed hex, numerics as decimal strings and blob encoded
// arrays decoded to element lists.
func encodeCell(v any, col *query.OutputColumn) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch cell := v.(type) {
	case []byte:
		if col != nil && col.Elem != nil {
			return decodeArrayCell(cell, col.Elem)
		}
		return hexCell(cell), nil
	case string:
		return cell, nil
	case int64:
		return cell, nil
	case float64:
		return cell, nil
	case bool:
		return cell, nil
	case time.Time:
		return cell.Unix(), nil
	}
	return fmt.Sprintf("%v", v), nil
}

func decodeArrayCell(payload []byte, elem *abi.Type) (any, error) {
	decoded, err := abi.DecodePayload(payload, abi.Type{Kind: abi.KindArray, Elem: elem})
	if err != nil {
		return nil, query.NewError(query.ErrDecode, "%v", err)
	}
	elems := decoded.([]interface{})
	out := make([]any, len(elems))
	for i, e := range elems {
		switch ev := e.(type) {
		case *big.Int:
			out[i] = ev.String()
		case bool:
			out[i] = ev
		case common.Address:
			out[i] = strings.ToLower(ev.Hex())
		case []byte:
			out[i] = hexCell(ev)
		default:
			out[i] = fmt.Sprintf("%v", ev)
		}
	}
	return out, nil
}

func hexCell(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// classifyDbError maps a database failure to the error taxonomy clients
// see. Statement timeouts and failures raised by the decode helpers get
// their own kinds, everything else is a storage error.
func classifyDbError(err error) error {
	var qerr *query.Error
	if errors.As(err, &qerr) {
		return err
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		switch {
		case pgerr.Code == "57014":
			return query.NewError(query.ErrTimeout, "statement timeout exceeded")
		case pgerr.Code == "P0001" && strings.HasPrefix(pgerr.Message, "DecodeError: "):
			return query.NewError(query.ErrDecode, "%s", strings.TrimPrefix(pgerr.Message, "DecodeError: "))
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return query.NewError(query.ErrTimeout, "query deadline exceeded")
	}
	return query.NewError(query.ErrStorage, "%v", err)
}
