package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/indexsupply/golden-axe/services"
)

// ApiQueryLive serves GET /query-live as a Server-Sent-Events stream.
// The first event carries the current snapshot; afterwards an event is
// emitted whenever a watched chain advances, with or without matching
// rows, so the client always sees the moving cursor. The stream has no
// terminal event, it ends when the client disconnects.
func ApiQueryLive(w http.ResponseWriter, r *http.Request) {
	if err := services.GlobalCallRateLimiter.CheckCallLimit(r, 1); err != nil {
		sendErrorResponse(w, r.URL.String(), err)
		return
	}
	key := apiKey(r)
	if err := services.GlobalAccountService.CheckRequest(key); err != nil {
		sendErrorResponse(w, r.URL.String(), err)
		return
	}
	release, err := services.GlobalAccountService.AcquireStream(key)
	if err != nil {
		sendErrorResponse(w, r.URL.String(), err)
		return
	}
	defer release()

	requests, chains, cursor, err := parseGetRequest(r)
	if err != nil {
		sendErrorResponse(w, r.URL.String(), err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendErrorResponse(w, r.URL.String(), fmt.Errorf("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	timeout := services.GlobalAccountService.StatementTimeout(key)
	emit := func(batch *services.BatchResult) error {
		for _, response := range batchResponses(batch) {
			raw, err := json.Marshal(response)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", raw); err != nil {
				return err
			}
		}
		flusher.Flush()
		return nil
	}

	err = services.RunLiveQuery(r.Context(), requests, chains, cursor, timeout, emit)
	if err != nil && r.Context().Err() == nil {
		// headers are out, the error can only be delivered in-stream
		if raw, jerr := json.Marshal(&ApiErrorResponse{Error: err.Error()}); jerr == nil {
			fmt.Fprintf(w, "data: %s\n\n", raw)
			flusher.Flush()
		}
		logger.WithError(err).Warn("live query stream ended with error")
	}
}
