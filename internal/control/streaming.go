package control

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nymtech/nym-vpnd-core/internal/monitor"
	"github.com/nymtech/nym-vpnd-core/internal/vpn"
)

// streamWindow is the fixed per-connection backlog for both SSE feeds
// (spec §4.M: "streaming calls never back up more than a fixed window (32
// items) -- older items are dropped before newer").
const streamWindow = 32

// forward bridges an unbounded-rate source channel into a streamWindow-
// sized buffered queue with drop-oldest discipline, then drains that queue
// into w as SSE "data: " frames until either r's context is cancelled or
// the flusher is unavailable.
func forward[T any](w http.ResponseWriter, r *http.Request, source <-chan T, encode func(T) any) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "control: streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	queue := make(chan T, streamWindow)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case v, ok := <-source:
				if !ok {
					return
				}
				select {
				case queue <- v:
				default:
					select {
					case <-queue:
					default:
					}
					select {
					case queue <- v:
					default:
					}
				}
			case <-r.Context().Done():
				return
			}
		}
	}()

	for {
		select {
		case v := <-queue:
			data, err := json.Marshal(encode(v))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-done:
			return
		}
	}
}

// serveListenStateChanges streams every vpn.State transition as it
// happens (spec §4.M listenStateChanges).
func (h *handler) serveListenStateChanges(w http.ResponseWriter, r *http.Request) {
	ch, unsubscribe := h.deps.VPN.Subscribe()
	defer unsubscribe()
	forward(w, r, ch, func(s vpn.State) any { return toStateResponse(s) })
}

// serveListenConnectionStatus streams every monitor.Status the data-path
// liveness check reports (spec §4.M listenConnectionStatus).
func (h *handler) serveListenConnectionStatus(w http.ResponseWriter, r *http.Request) {
	ch, unsubscribe := h.deps.ConnectionStatus.Subscribe()
	defer unsubscribe()
	forward(w, r, ch, func(s monitor.Status) any {
		return struct {
			Status string `json:"status"`
		}{Status: s.String()}
	})
}
