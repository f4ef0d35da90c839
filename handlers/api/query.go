package api

import (
	"net/http"

	"github.com/indexsupply/golden-axe/query"
	"github.com/indexsupply/golden-axe/services"
)

func parseAnyRequest(r *http.Request) ([]services.QueryRequest, []uint64, query.Cursor, error) {
	if r.Method == http.MethodPost {
		return parsePostRequests(r)
	}
	return parseGetRequest(r)
}

// ApiQuery serves GET and POST /api/v1/query. A GET executes one
// statement, a POST executes its body as one batch inside a single
// snapshot. The batch response is an array of result objects in input
// order, all carrying the same advanced cursor.
func ApiQuery(w http.ResponseWriter, r *http.Request) {
	if err := services.GlobalCallRateLimiter.CheckCallLimit(r, 1); err != nil {
		sendErrorResponse(w, r.URL.String(), err)
		return
	}
	key := apiKey(r)
	if err := services.GlobalAccountService.CheckRequest(key); err != nil {
		sendErrorResponse(w, r.URL.String(), err)
		return
	}

	requests, chains, cursor, err := parseAnyRequest(r)
	if err != nil {
		sendErrorResponse(w, r.URL.String(), err)
		return
	}

	timeout := services.GlobalAccountService.StatementTimeout(key)
	batch, err := services.RunQueryBatch(r.Context(), requests, chains, cursor, timeout)
	if err != nil {
		sendErrorResponse(w, r.URL.String(), err)
		return
	}

	responses := batchResponses(batch)
	if r.Method == http.MethodGet {
		sendJSONResponse(w, r.URL.String(), responses[0])
		return
	}
	sendJSONResponse(w, r.URL.String(), responses)
}
