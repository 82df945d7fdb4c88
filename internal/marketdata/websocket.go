package marketdata

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rishav/order-book/internal/orders"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

// wsEvent is the JSON envelope streamed to websocket clients.
type wsEvent struct {
	Type  string         `json:"type"` // "trade" or "l2"
	Trade *TradeReport   `json:"trade,omitempty"`
	L2    *orders.L2Book `json:"l2,omitempty"`
}

// Hub upgrades HTTP requests to websocket sessions streaming the feed.
type Hub struct {
	publisher *Publisher
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

// NewHub creates a hub over publisher.
func NewHub(publisher *Publisher, log zerolog.Logger) *Hub {
	return &Hub{
		publisher: publisher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The admin listener is not an authenticated surface.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeHTTP implements the /ws/marketdata endpoint.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("marketdata subscriber connected")

	trades := h.publisher.SubscribeTrades()
	books := h.publisher.SubscribeL2()
	done := make(chan struct{})

	// Reader: discard inbound frames, detect disconnect.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case trade, ok := <-trades:
			if !ok {
				return
			}
			if !h.writeEvent(conn, wsEvent{Type: "trade", Trade: &trade}) {
				return
			}
		case book, ok := <-books:
			if !ok {
				return
			}
			if !h.writeEvent(conn, wsEvent{Type: "l2", L2: &book}) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Hub) writeEvent(conn *websocket.Conn, ev wsEvent) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ev); err != nil {
		h.log.Debug().Err(err).Msg("marketdata subscriber write failed")
		return false
	}
	return true
}
