package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/indexsupply/golden-axe/services"
	"github.com/indexsupply/golden-axe/utils"
)

type statusEvent struct {
	Version string            `json:"version"`
	Chains  map[uint64]uint64 `json:"chains"`
}

// ApiStatus streams the per chain head heights as Server-Sent-Events: one
// event immediately, then one whenever any chain advances. A plain JSON
// snapshot is served when the client does not ask for an event stream.
func ApiStatus(w http.ResponseWriter, r *http.Request) {
	feed := services.GlobalBlockFeed

	if r.Header.Get("Accept") != "text/event-stream" {
		sendJSONResponse(w, r.URL.String(), &statusEvent{
			Version: utils.GetVersion(),
			Chains:  feed.Heights(),
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendErrorResponse(w, r.URL.String(), fmt.Errorf("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := feed.Subscribe(utils.ChainIds())
	defer sub.Unsubscribe()

	for {
		raw, err := json.Marshal(&statusEvent{
			Version: utils.GetVersion(),
			Chains:  feed.Heights(),
		})
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", raw); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-sub.C:
		}
	}
}
