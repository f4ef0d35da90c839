package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/indexsupply/golden-axe/query"
	"github.com/indexsupply/golden-axe/services"
	"github.com/indexsupply/golden-axe/utils"
)

// apiRequestBody is one element of a POST batch. Both current and legacy
// field names are accepted.
type apiRequestBody struct {
	SQL             string   `json:"sql"`
	Query           string   `json:"query"`
	Signatures      []string `json:"signatures"`
	EventSignatures []string `json:"event_signatures"`
	Chain           uint64   `json:"chain"`
	Cursor          string   `json:"cursor"`
}

func (body *apiRequestBody) toRequest() services.QueryRequest {
	req := services.QueryRequest{SQL: body.SQL, Signatures: body.Signatures}
	if req.SQL == "" {
		req.SQL = body.Query
	}
	if len(req.Signatures) == 0 {
		req.Signatures = body.EventSignatures
	}
	return req
}

// apiKey extracts the caller's key from the query string, a dedicated
// header or a bearer token.
func apiKey(r *http.Request) string {
	if key := r.URL.Query().Get("api-key"); key != "" {
		return key
	}
	if key := r.Header.Get("Api-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// parseChains reads the chain selection from repeated query params. With
// no explicit selection every configured chain is queried.
func parseChains(r *http.Request) ([]uint64, error) {
	values := r.URL.Query()["chain"]
	if len(values) == 0 {
		return utils.ChainIds(), nil
	}
	chains := make([]uint64, 0, len(values))
	for _, value := range values {
		chain, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return nil, query.NewError(query.ErrValidation, "invalid chain %q", value)
		}
		chains = append(chains, chain)
	}
	return chains, nil
}

// parseGetRequest assembles a single statement batch from GET params.
func parseGetRequest(r *http.Request) ([]services.QueryRequest, []uint64, query.Cursor, error) {
	params := r.URL.Query()
	sql := params.Get("sql")
	if sql == "" {
		sql = params.Get("query")
	}
	sigs := params["signatures"]
	if len(sigs) == 0 {
		sigs = params["event_signatures"]
	}
	chains, err := parseChains(r)
	if err != nil {
		return nil, nil, nil, err
	}
	cursor, cerr := query.ParseCursor(params.Get("cursor"))
	if cerr != nil {
		return nil, nil, nil, cerr
	}
	requests := []services.QueryRequest{{SQL: sql, Signatures: sigs}}
	return requests, chains, cursor, nil
}

// parsePostRequests decodes a JSON array body into one batch. A cursor or
// chain given on any element applies to the whole batch.
func parsePostRequests(r *http.Request) ([]services.QueryRequest, []uint64, query.Cursor, error) {
	var bodies []apiRequestBody
	if err := json.NewDecoder(r.Body).Decode(&bodies); err != nil {
		return nil, nil, nil, query.NewError(query.ErrValidation, "invalid request body: %v", err)
	}
	requests := make([]services.QueryRequest, len(bodies))
	chainSet := map[uint64]bool{}
	cursorStr := r.URL.Query().Get("cursor")
	for i, body := range bodies {
		requests[i] = body.toRequest()
		if body.Chain != 0 {
			chainSet[body.Chain] = true
		}
		if body.Cursor != "" {
			cursorStr = body.Cursor
		}
	}
	chains, err := parseChains(r)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(r.URL.Query()["chain"]) == 0 && len(chainSet) > 0 {
		chains = chains[:0]
		for chain := range chainSet {
			chains = append(chains, chain)
		}
	}
	cursor, cerr := query.ParseCursor(cursorStr)
	if cerr != nil {
		return nil, nil, nil, cerr
	}
	return requests, chains, cursor, nil
}

// CorsMiddleware applies the configured origin allowlist to API routes.
func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := utils.Config.Api.CorsOrigins
		if origin != "" {
			if utils.SliceContains(allowed, "*") {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if utils.SliceContains(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Api-Key, Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
