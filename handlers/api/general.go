package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/indexsupply/golden-axe/query"
	"github.com/indexsupply/golden-axe/services"
)

var logger = logrus.StandardLogger().WithField("module", "api")

type ApiErrorResponse struct {
	Error string `json:"error"`
}

// QueryResponse is the wire shape of one executed request.
type QueryResponse struct {
	Cursor  string               `json:"cursor"`
	Columns []query.OutputColumn `json:"columns"`
	Rows    [][]any              `json:"rows"`
}

// errorStatus maps an error to the HTTP status served with it. Compile
// stage failures are the caller's fault; only timeouts and storage
// failures indicate server side trouble.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrUnknownApiKey):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrAccountDisabled):
		return http.StatusForbidden
	case errors.Is(err, services.ErrRateLimited), errors.Is(err, services.ErrTooManyStreams):
		return http.StatusTooManyRequests
	}
	var qerr *query.Error
	if errors.As(err, &qerr) {
		switch qerr.Kind {
		case query.ErrTimeout:
			return http.StatusRequestTimeout
		case query.ErrStorage:
			return http.StatusInternalServerError
		default:
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func sendErrorResponse(w http.ResponseWriter, route string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.WithError(err).Errorf("error handling API %v route", route)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(&ApiErrorResponse{Error: err.Error()}); encErr != nil {
		logger.Errorf("error serializing json error for API %v route: %v", route, encErr)
	}
}

func sendJSONResponse(w http.ResponseWriter, route string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("error serializing json data for API %v route: %v", route, err)
	}
}

func batchResponses(batch *services.BatchResult) []*QueryResponse {
	responses := make([]*QueryResponse, len(batch.Results))
	for i, result := range batch.Results {
		responses[i] = &QueryResponse{
			Cursor:  batch.Cursor,
			Columns: result.Columns,
			Rows:    result.Rows,
		}
	}
	return responses
}
