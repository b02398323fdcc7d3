package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// wsPushInterval is the telemetry frame cadence.
	wsPushInterval = 5 * time.Second

	// wsWriteTimeout bounds each frame write.
	wsWriteTimeout = 10 * time.Second
)

// upgrader accepts any origin: the server binds to loopback by default and
// carries no credentials.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TelemetryWS handles GET /ws/telemetry, pushing the stats rollup every
// wsPushInterval until the client disconnects.
func (h *Handlers) TelemetryWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Drain control frames and surface the client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPushInterval)
	defer ticker.Stop()

	if err := h.pushTelemetry(conn); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := h.pushTelemetry(conn); err != nil {
				return
			}
		}
	}
}

func (h *Handlers) pushTelemetry(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(h.telemetrySnapshot()); err != nil {
		log.Debug().Err(err).Msg("telemetry websocket write failed")
		return err
	}
	return nil
}
