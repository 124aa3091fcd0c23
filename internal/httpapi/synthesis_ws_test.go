package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialSynthesisWS(t *testing.T, h http.Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/synthesis/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestSynthesisWS_AudioFrame(t *testing.T) {
	me, h := startMockEngine(t)
	conn := dialSynthesisWS(t, h)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"hello","speaker":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", mt)
	}
	if !bytes.Equal(data, fixedAudio) {
		t.Errorf("audio = %q, want engine audio", data)
	}
	if n := len(me.Calls()); n != 2 {
		t.Errorf("engine received %d calls, want 2", n)
	}
}

func TestSynthesisWS_ErrorFrameKeepsConnection(t *testing.T) {
	me, h := startMockEngine(t)
	conn := dialSynthesisWS(t, h)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"hi","speed_scale":3}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var e wsError
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if e.Status != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", e.Status)
	}
	if !strings.Contains(e.Detail, "speed_scale") {
		t.Errorf("detail = %q, should name the field", e.Detail)
	}
	if n := len(me.Calls()); n != 0 {
		t.Errorf("engine received %d calls for an invalid request", n)
	}

	// The same connection still serves the next request.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"again"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	mt, _, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Errorf("message type = %d, want binary after recovering", mt)
	}
}

func TestSynthesisWS_EngineDown(t *testing.T) {
	h := newTestRouter(t, closedEngineURL())
	conn := dialSynthesisWS(t, h)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"hi"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var e wsError
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if e.Status != http.StatusServiceUnavailable || e.Detail != engineUnavailableMsg {
		t.Errorf("frame = %+v, want 503 unavailable", e)
	}
}

func TestSynthesisWS_BinaryFrameCloses(t *testing.T) {
	_, h := startMockEngine(t)
	conn := dialSynthesisWS(t, h)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseUnsupportedData) {
		t.Errorf("err = %v, want close 1003", err)
	}
}
