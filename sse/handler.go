package sse

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/podflow/logger"
)

// DefaultKeepAlive stays under common proxy idle timeouts.
const DefaultKeepAlive = 30 * time.Second

// StatusPattern matches every status stream client.
const StatusPattern = "status:*"

// StatusClientID returns a fresh id for a status stream client.
func StatusClientID() string {
	return "status:" + uuid.NewString()
}

// ConnectedEvent is the first frame on every stream.
type ConnectedEvent struct {
	ClientID string            `json:"client_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ServeOptions tune one connection.
type ServeOptions struct {
	KeepAlive time.Duration
	// Initial is called once the client is registered and its frames are
	// written right after the connected frame. Broadcasts queued meanwhile
	// follow, so a snapshot here never leaves a gap.
	Initial func() []Event
	Client  []ClientOption
}

// ServeSSE streams hub events for clientID until the request ends or the
// hub stops.
func ServeSSE(hub *Hub, w http.ResponseWriter, r *http.Request, clientID string, opts ServeOptions) {
	log := hub.log.WithFields(logger.Fields("client_id", clientID))

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("streaming not supported by response writer")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Long-lived stream; the server's WriteTimeout must not cut it.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("could not clear write deadline", logger.ErrorFields("set_write_deadline", err))
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	client := NewClient(clientID, opts.Client...)
	if !hub.Register(client) {
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}
	defer hub.Unregister(client)

	connected, err := JSONEvent(EventTypeConnected, "", ConnectedEvent{ClientID: clientID, Metadata: client.Metadata()})
	if err != nil {
		log.Error("encoding connected event failed", logger.ErrorFields("connect", err))
		return
	}
	frames := []Event{connected}
	if opts.Initial != nil {
		frames = append(frames, opts.Initial()...)
	}
	for _, ev := range frames {
		if _, err := ev.WriteTo(w); err != nil {
			return
		}
	}
	flusher.Flush()
	log.Debug("client connected", logger.Fields("remote_addr", r.RemoteAddr))

	interval := opts.KeepAlive
	if interval <= 0 {
		interval = DefaultKeepAlive
	}
	keepAlive := time.NewTicker(interval)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("client disconnected", logger.Fields("reason", ctx.Err().Error()))
			return

		case ev, ok := <-client.Events():
			if !ok {
				return
			}
			if _, err := ev.WriteTo(w); err != nil {
				log.Debug("write failed", logger.ErrorFields("write", err))
				return
			}
			flusher.Flush()

		case <-keepAlive.C:
			// Comment lines keep proxies from closing an idle stream.
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
