package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"smokehouse/internal/models"
	"smokehouse/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// --- parseInterval unit tests ---

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil)

	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default_when_missing", "/ws", 1 * time.Second},
		{"interval_string_valid", "/ws?interval=200ms", 200 * time.Millisecond},
		{"interval_ms_valid", "/ws?interval_ms=150", 150 * time.Millisecond},
		{"interval_too_large", "/ws?interval=20s", 1 * time.Second},
		{"interval_ms_too_large", "/ws?interval_ms=20000", 1 * time.Second},
		{"interval_invalid_string", "/ws?interval=bogus", 1 * time.Second},
		{"interval_ms_invalid", "/ws?interval_ms=NaN", 1 * time.Second},
		{"both_present_interval_wins", "/ws?interval=2s&interval_ms=150", 2 * time.Second},
		{"both_present_invalid_interval_ms_used", "/ws?interval=bogus&interval_ms=250", 250 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.u, nil)
			c, _ := gin.CreateTestContext(w)
			c.Request = req
			got := h.parseInterval(c)
			if got != tc.want {
				t.Fatalf("got %v, want %v for %s", got, tc.want, tc.u)
			}
		})
	}
}

// --- websocket integration tests ---

func TestWebSocket_StateStream_QuietWhileUnchanged(t *testing.T) {
	// Mock monitoring returns a fixed state
	mon := &mockMonitoring{state: models.ProcessSnapshot{
		State:     models.StateRunningAuto,
		ChamberC:  70,
		SetpointC: 80,
		StepIndex: 1,
	}}
	s := &service.Service{Monitoring: mon}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(s, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	defer srv.Close()

	// Build ws URL
	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	q := u.Query()
	q.Set("interval_ms", "20") // fast ticks for the test
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	type envelope struct {
		Type  string          `json:"type"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}

	// Read initial state
	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if env.Type != "state" || len(env.Data) == 0 {
		t.Fatalf("bad envelope: %+v", env)
	}
	var st models.ProcessSnapshot
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.State != models.StateRunningAuto || st.ChamberC != 70 || st.StepIndex != 1 {
		t.Fatalf("unexpected state: %+v", st)
	}

	// unchanged snapshots are not repeated before the heartbeat
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if err := conn.ReadJSON(&env); err == nil {
		t.Fatalf("unexpected repeat of an unchanged snapshot: %+v", env)
	}
}

func TestWebSocket_InitialGetStateError_Closes(t *testing.T) {
	mon := &mockMonitoring{err: errors.New("boom")}
	s := &service.Service{Monitoring: mon}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(s, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	// The server should close immediately after failing initial GetState/WriteJSON
	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var raw json.RawMessage
	if err := conn.ReadJSON(&raw); err == nil {
		t.Fatalf("expected read error (closed), got message: %s", string(raw))
	}
}

func TestSendState_SkipsUnchangedUntilHeartbeat(t *testing.T) {
	mon := &mockMonitoring{state: models.ProcessSnapshot{State: models.StateIdle}}
	h := NewHandler(&service.Service{Monitoring: mon}, nil)

	frames := make(chan wsEnvelope, 8)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		stream := &wsStream{conn: conn}
		ctx := c.Request.Context()
		_ = h.sendState(ctx, stream) // first: sent
		_ = h.sendState(ctx, stream) // unchanged: skipped
		mon.state.State = models.StatePauseDoor
		_ = h.sendState(ctx, stream) // changed: sent
		stream.lastSent = stream.lastSent.Add(-heartbeatEvery)
		_ = h.sendState(ctx, stream) // heartbeat due: sent
		mon.err = errors.New("lock timeout")
		_ = h.sendState(ctx, stream) // in-band error
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			break
		}
		frames <- env
	}
	close(frames)

	var types []string
	for f := range frames {
		types = append(types, f.Type)
	}
	want := []string{"state", "state", "state", "error"}
	if len(types) != len(want) {
		t.Fatalf("frames = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("frames = %v, want %v", types, want)
		}
	}
}
