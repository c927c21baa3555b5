package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"smokehouse/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 1 * time.Second
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000
	// unchanged snapshots are still pushed this often
	heartbeatEvery = 30 * time.Second
)

type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsStream remembers the last snapshot written to one connection.
type wsStream struct {
	conn     *websocket.Conn
	last     models.ProcessSnapshot
	lastSent time.Time
	sent     bool
}

// @Summary      Stream process snapshots
// @Description  Upgrades to WebSocket and pushes {"type":"state"} envelopes when the snapshot changes.
// @Tags         process
// @Param        interval     query  string  false  "Poll interval, e.g. 500ms (max 10s)"
// @Param        interval_ms  query  int     false  "Poll interval in ms (max 10000)"
// @Param        token        query  string  false  "Bearer token when no Authorization header can be sent"
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.startReader(conn, done)

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	ctx := c.Request.Context()
	stream := &wsStream{conn: conn}
	if err := h.sendState(ctx, stream); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case <-ticker.C:
			if err := h.sendState(ctx, stream); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// parseInterval reads ?interval=2s or ?interval_ms=2000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}

	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}

	return defaultInterval
}

// startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

// sendState writes the snapshot when it changed since the last write or the
// heartbeat is due. A failed initial read closes the stream; later read
// failures are reported in-band.
func (h *Handler) sendState(ctx context.Context, s *wsStream) error {
	st, err := h.services.Monitoring.GetState(ctx)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_get_state_failed", "err", err)
		}
		if !s.sent {
			return err
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return s.conn.WriteJSON(wsEnvelope{Type: "error", Error: errGetState})
	}

	now := time.Now()
	if s.sent && st == s.last && now.Sub(s.lastSent) < heartbeatEvery {
		return nil
	}
	_ = s.conn.SetWriteDeadline(now.Add(writeWait))
	if err := s.conn.WriteJSON(wsEnvelope{Type: "state", Data: st}); err != nil {
		return err
	}
	s.last, s.lastSent, s.sent = st, now, true
	return nil
}
