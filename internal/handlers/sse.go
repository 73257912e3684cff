package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"

	"github.com/designdesk/api/internal/platform/httpx"
	"github.com/designdesk/api/internal/services"
)

const sseHeartbeatInterval = 15 * time.Second

// sessionIDFromRequest identifies the live session. Clients reconnecting with
// the same session_id replace their previous subscription instead of leaking it.
func sessionIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("session_id")); id != "" {
		return id
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return ulid.Make().String()
}

// streamLiveFeed forwards live result-set snapshots to the client as
// server-sent events until either side disconnects.
func streamLiveFeed[T any, P any](ctx context.Context, w http.ResponseWriter, feed *services.LiveFeed[T], build func(T) P) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		feed.Stop()
		httpx.WriteError(ctx, w, httpx.NewError("streaming_unsupported", "response writer does not support streaming", http.StatusInternalServerError))
		return
	}
	defer feed.Stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, open := <-feed.Events():
			if !open {
				return
			}
			if event.Err != nil {
				writeSSEEvent(w, "error", map[string]string{"error": "live feed terminated"})
				flusher.Flush()
				return
			}

			items := make([]P, 0, len(event.Items))
			for _, item := range event.Items {
				items = append(items, build(item))
			}
			writeSSEEvent(w, "snapshot", map[string]any{"items": items})
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
