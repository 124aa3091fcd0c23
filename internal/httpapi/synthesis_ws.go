package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lukasbauer/voicegate/internal/synthesis"
	"go.uber.org/zap"
)

const (
	wsWriteWait    = 10 * time.Second
	wsMaxFrameSize = 64 * 1024
)

// wsError is sent as a text frame when a request on the socket fails.
type wsError struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// handleSynthesisWS serves synthesis over a websocket. Each text frame carries one
// request body; requests on a connection run one at a time, in order.
func (r *Router) handleSynthesisWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.requestLogger(req).Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxFrameSize)

	log := r.requestLogger(req)
	log.Info("synthesis websocket connected")

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("synthesis websocket read failed", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "text frames only"),
				time.Now().Add(wsWriteWait))
			return
		}

		if err := r.serveWSFrame(conn, req, data); err != nil {
			log.Warn("synthesis websocket write failed", zap.Error(err))
			return
		}
	}
}

func (r *Router) serveWSFrame(conn *websocket.Conn, req *http.Request, data []byte) error {
	start := time.Now()

	sreq, err := synthesis.DecodeJSON(bytes.NewReader(data))
	if err == nil {
		var res *synthesis.Result
		res, err = r.synth.Synthesize(req.Context(), sreq)
		if err == nil {
			r.metrics.RecordSynthesis(req.Context(), outcomeOK, time.Since(start))
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			return conn.WriteMessage(websocket.BinaryMessage, res.Audio)
		}
	}

	reply := r.reportFailure(req, err, start)
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(wsError{Status: reply.status, Detail: reply.detail}); err != nil {
		return fmt.Errorf("write error frame: %w", err)
	}
	return nil
}
