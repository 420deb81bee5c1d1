package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/InsulaLabs/msdscript/internal/history"
	"github.com/InsulaLabs/msdscript/internal/runner"
	"github.com/InsulaLabs/msdscript/pkg/interp"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 64 * 1024           // Maximum message size allowed from peer.
	sendBufferSize = 64                  // Buffer size for the send channel.
)

const modeDef = "def"

// evalSession is one websocket client. Definitions made with "def" frames
// extend env and are visible to every later frame on the same connection.
type evalSession struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{} // closed when writePump exits
	service *Service
	env     *interp.Env
}

func (s *Service) sessionHandler(w http.ResponseWriter, r *http.Request) {
	s.wsConnectionLock.Lock()
	if s.activeWsConnections >= int32(s.cfg.MaxConnections) {
		s.wsConnectionLock.Unlock()
		s.logger.Warn("Max WebSocket connections reached, rejecting new connection", "current", s.activeWsConnections, "max", s.cfg.MaxConnections)
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	s.activeWsConnections++
	s.wsConnectionLock.Unlock()

	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.releaseConnection()
		s.logger.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	session := &evalSession{
		id:      uuid.New().String(),
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		service: s,
		env:     interp.Empty,
	}
	s.logger.Info("WebSocket session started", "remote_addr", conn.RemoteAddr().String(), "session", session.id)

	session.reply(SessionReply{Session: session.id})
	go session.writePump()
	go session.readPump()
}

func (s *Service) releaseConnection() {
	s.wsConnectionLock.Lock()
	defer s.wsConnectionLock.Unlock()
	if s.activeWsConnections > 0 {
		s.activeWsConnections--
	}
}

func (es *evalSession) reply(r SessionReply) {
	data, err := json.Marshal(r)
	if err != nil {
		es.service.logger.Error("could not encode reply", "error", err)
		return
	}
	// Waiting here stops readPump from taking more frames until the
	// client drains its replies.
	select {
	case es.send <- data:
	case <-es.done:
	case <-es.service.appCtx.Done():
	}
}

// readPump evaluates frames in order. It owns env, so no locking is needed.
func (es *evalSession) readPump() {
	logger := es.service.logger.With("session", es.id)
	defer func() {
		close(es.send)
		es.service.releaseConnection()
		logger.Info("WebSocket session finished", "remote_addr", es.conn.RemoteAddr())
	}()

	es.conn.SetReadLimit(maxMessageSize)
	es.conn.SetReadDeadline(time.Now().Add(pongWait))
	es.conn.SetPongHandler(func(string) error {
		es.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var req SessionRequest
		if err := es.conn.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				es.reply(SessionReply{Error: &ErrorBody{Kind: "request", Message: "frame is not a valid request"}})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("WebSocket read error", "error", err)
			}
			return
		}
		es.conn.SetReadDeadline(time.Now().Add(pongWait))
		es.reply(es.handle(req))
	}
}

func (es *evalSession) handle(req SessionRequest) SessionReply {
	ctx := es.service.appCtx

	if req.Mode == modeDef {
		if !isIdentifier(req.Name) {
			return SessionReply{Error: &ErrorBody{Kind: "request", Message: "def requires a name made of letters"}}
		}
		e, err := es.service.runner.Parse(req.Source)
		if err != nil {
			return SessionReply{Error: errorBody(err)}
		}
		v, err := es.service.runner.Eval(ctx, e, es.env)
		if err != nil {
			return SessionReply{Error: errorBody(err)}
		}
		es.env = interp.Extend(req.Name, v, es.env)
		return SessionReply{Result: fmt.Sprintf("%s = %s", req.Name, v)}
	}

	mode, err := runner.ParseMode(req.Mode)
	if err != nil {
		return SessionReply{Error: &ErrorBody{Kind: "request", Message: err.Error()}}
	}
	out, err := es.service.runner.RunIn(ctx, mode, req.Source, es.env)
	es.record(mode, req.Source, out, err)
	if err != nil {
		return SessionReply{Error: errorBody(err)}
	}
	return SessionReply{Result: out}
}

func (es *evalSession) record(mode runner.Mode, src, out string, err error) {
	if es.service.history == nil {
		return
	}
	entry := history.Entry{Mode: string(mode), Source: src, Output: out}
	if err != nil {
		entry.Error = err.Error()
	}
	if herr := es.service.history.Append(es.id, entry); herr != nil {
		es.service.logger.Warn("could not record history", "session", es.id, "error", herr)
	}
}

// writePump is the only writer on the connection.
func (es *evalSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		es.conn.Close()
		close(es.done)
	}()
	for {
		select {
		case message, ok := <-es.send:
			es.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				es.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := es.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				es.service.logger.Error("WebSocket write error", "session", es.id, "error", err)
				return
			}
		case <-ticker.C:
			es.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := es.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				es.service.logger.Error("WebSocket ping write error", "session", es.id, "error", err)
				return
			}
		case <-es.service.appCtx.Done():
			es.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
