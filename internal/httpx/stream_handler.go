package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-menu-orders.git/internal/notifier"
)

// StreamHandler serves the one-way order change feed as SSE. One stream per
// browser tab; all validation happens before the first frame.
type StreamHandler struct {
	Subs notifier.Subscriber

	// Disabled short-circuits with 501 on platforms that cannot hold
	// long-lived connections; clients fall back to polling.
	Disabled bool
}

func (h *StreamHandler) Register(r *chi.Mux) {
	r.Get("/orders/stream", h.stream)
}

func (h *StreamHandler) stream(w http.ResponseWriter, r *http.Request) {
	if h.Disabled {
		writeJSON(w, http.StatusNotImplemented, map[string]string{
			"error":    "Server-Sent Events are not supported in this environment",
			"message":  "Real-time updates are disabled on serverless platforms. The application will use polling for updates.",
			"fallback": "polling",
		})
		return
	}

	outletID := r.URL.Query().Get("outletId")
	if outletID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Outlet ID is required"})
		return
	}

	sub, err := h.Subs.Subscribe(r.Context(), outletID)
	if errors.Is(err, notifier.ErrBadOutletID) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid outlet ID format"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to setup change stream"})
		return
	}
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// the notifier closes the channel after a feed error or Close; client
	// disconnect surfaces via the request context feeding Subscribe.
	for ev := range sub.Events() {
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return
		}
		flusher.Flush()
	}
}
