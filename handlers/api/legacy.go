package api

import (
	"encoding/json"
	"net/http"

	"github.com/indexsupply/golden-axe/query"
	"github.com/indexsupply/golden-axe/services"
)

// legacyRequest is the earlier protocol revision still used by older
// clients: one chain per request and a plain block height instead of a
// cursor.
type legacyRequest struct {
	Chain           uint64   `json:"chain"`
	EventSignatures []string `json:"event_signatures"`
	Query           string   `json:"query"`
	BlockHeight     uint64   `json:"block_height"`
}

// legacyResponse carries rows as positional arrays with the column names
// as the first row of each result.
type legacyResponse struct {
	BlockHeight uint64    `json:"block_height"`
	Result      [][][]any `json:"result"`
}

func legacyRows(result *services.QueryResult) [][]any {
	rows := [][]any{}
	if len(result.Rows) == 0 {
		return rows
	}
	header := make([]any, len(result.Columns))
	for i, col := range result.Columns {
		header[i] = col.Name
	}
	rows = append(rows, header)
	return append(rows, result.Rows...)
}

// ApiQueryLegacy serves POST /api/v0/query in the earlier wire format.
// It is a re-projection of the same compiled result: the batch runs
// exactly as for the current endpoint and only the response shape
// differs.
func ApiQueryLegacy(w http.ResponseWriter, r *http.Request) {
	if err := services.GlobalCallRateLimiter.CheckCallLimit(r, 1); err != nil {
		sendErrorResponse(w, r.URL.String(), err)
		return
	}
	key := apiKey(r)
	if err := services.GlobalAccountService.CheckRequest(key); err != nil {
		sendErrorResponse(w, r.URL.String(), err)
		return
	}

	var bodies []legacyRequest
	if err := json.NewDecoder(r.Body).Decode(&bodies); err != nil {
		sendErrorResponse(w, r.URL.String(), query.NewError(query.ErrValidation, "invalid request body: %v", err))
		return
	}
	if len(bodies) == 0 {
		sendErrorResponse(w, r.URL.String(), query.NewError(query.ErrValidation, "empty batch"))
		return
	}

	chain := bodies[0].Chain
	requests := make([]services.QueryRequest, len(bodies))
	cursor := query.Cursor{}
	for i, body := range bodies {
		if body.Chain != chain {
			sendErrorResponse(w, r.URL.String(), query.NewError(query.ErrValidation, "all requests of a batch must use the same chain"))
			return
		}
		requests[i] = services.QueryRequest{SQL: body.Query, Signatures: body.EventSignatures}
		// block_height is an inclusive lower bound, the cursor an
		// exclusive one
		if body.BlockHeight > 0 {
			cursor[chain] = body.BlockHeight - 1
		}
	}
	if chain == 0 {
		sendErrorResponse(w, r.URL.String(), query.NewError(query.ErrValidation, "chain is required"))
		return
	}

	timeout := services.GlobalAccountService.StatementTimeout(key)
	batch, err := services.RunQueryBatch(r.Context(), requests, []uint64{chain}, cursor, timeout)
	if err != nil {
		sendErrorResponse(w, r.URL.String(), err)
		return
	}

	response := &legacyResponse{
		BlockHeight: batch.Heights[chain],
		Result:      make([][][]any, len(batch.Results)),
	}
	for i, result := range batch.Results {
		response.Result[i] = legacyRows(result)
	}
	sendJSONResponse(w, r.URL.String(), response)
}
