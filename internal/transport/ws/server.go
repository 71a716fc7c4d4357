package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/match"
)

const (
	outQueue      = 8
	writeTimeout  = 5 * time.Second
	pongWait      = 60 * time.Second
	helloTimeout  = 5 * time.Second
	closeDeadline = time.Second
)

// Matches resolves the match a connection asks for.
type Matches interface {
	Get(id string) (*match.Match, bool)
}

type Server struct {
	matches   Matches
	validator *protocol.Validator
	log       logrus.FieldLogger

	upgrader websocket.Upgrader

	// A session with no frame or pong for pongWait is dropped; pings go out
	// every pingPeriod so quiet players stay seated.
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewServer(matches Matches, v *protocol.Validator, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		matches:   matches,
		validator: v,
		log:       logger.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		pongWait:   pongWait,
		pingPeriod: (pongWait * 9) / 10,
	}
}

type session struct {
	conn     *websocket.Conn
	m        *match.Match
	player   int
	encoding string
	out      chan []byte

	// gorilla connections allow one concurrent writer.
	wmu sync.Mutex
}

func (sess *session) write(msgType int, b []byte) error {
	sess.wmu.Lock()
	defer sess.wmu.Unlock()
	_ = sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return sess.conn.WriteMessage(msgType, b)
}

func (sess *session) sendError(code, message string) {
	b, err := json.Marshal(errorMsg(code, message))
	if err != nil {
		return
	}
	_ = sess.write(websocket.TextMessage, b)
}

// Handler upgrades the request and runs one player session. The match may be
// named by the ?match= query parameter or by the HELLO frame.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess := s.handshake(ctx, conn, strings.TrimSpace(r.URL.Query().Get("match")))
		if sess == nil {
			return
		}
		log := s.log.WithFields(logrus.Fields{"match_id": sess.m.ID(), "player": sess.player})
		defer sess.m.Leave(sess.player, sess.out)

		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.pongWait))
		})

		go s.writeLoop(ctx, cancel, sess)
		go func() {
			// Unblocks the reader once the writer gives up or the match ends.
			<-ctx.Done()
			_ = conn.Close()
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCommand {
				sess.sendError(protocol.ErrProtoBadRequest, "expected COMMAND")
				continue
			}
			if err := s.validator.Validate(protocol.TypeCommand, msg); err != nil {
				sess.sendError(protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			var cmd protocol.CommandMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				sess.sendError(protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			if cmd.ProtocolVersion != protocol.Version {
				sess.sendError(protocol.ErrProtoBadRequest, "bad protocol_version")
				continue
			}
			if err := sess.m.Submit(ctx, sess.player, cmd.CommandPacket); err != nil {
				log.WithError(err).Debug("command not delivered")
				if err == match.ErrMatchDone {
					break
				}
			}
		}
		log.Info("session closed")
	}
}

// writeLoop forwards UPDATE frames and keepalive pings until the connection
// fails or the match ends, in which case the last queued frames are flushed
// before closing.
func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, sess *session) {
	ping := time.NewTicker(s.pingPeriod)
	defer ping.Stop()

	msgType := websocket.TextMessage
	if sess.encoding == protocol.EncodingMsgpack {
		msgType = websocket.BinaryMessage
	}
	write := func(b []byte) bool {
		if err := sess.write(msgType, b); err != nil {
			cancel()
			return false
		}
		return true
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				cancel()
				return
			}
		case b := <-sess.out:
			if !write(b) {
				return
			}
		case <-sess.m.Done():
			for len(sess.out) > 0 {
				if !write(<-sess.out) {
					return
				}
			}
			_ = sess.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "match ended"), time.Now().Add(closeDeadline))
			cancel()
			return
		}
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn, matchID string) *session {
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.reject(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil
	}
	if err := s.validator.Validate(protocol.TypeHello, msg); err != nil {
		s.reject(conn, protocol.ErrProtoBadRequest, err.Error())
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		s.reject(conn, protocol.ErrProtoBadRequest, err.Error())
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		s.reject(conn, protocol.ErrProtoBadRequest, "bad protocol_version")
		return nil
	}
	if matchID == "" {
		matchID = strings.TrimSpace(hello.MatchID)
	}
	if hello.PlayerName == "" {
		hello.PlayerName = "player"
	}

	m, ok := s.matches.Get(matchID)
	if !ok {
		s.reject(conn, protocol.ErrMatchNotFound, "no match "+matchID)
		return nil
	}
	out := make(chan []byte, outQueue)
	resp, err := m.Join(ctx, hello.PlayerName, hello.Encoding, out)
	if err != nil {
		s.reject(conn, protocol.ErrMatchEnded, err.Error())
		return nil
	}
	if resp.Code != "" {
		s.reject(conn, resp.Code, resp.Message)
		return nil
	}
	if err := writeJSON(conn, resp.Welcome); err != nil {
		m.Leave(resp.Welcome.Player, out)
		return nil
	}
	s.log.WithFields(logrus.Fields{"match_id": m.ID(), "player": resp.Welcome.Player, "name": hello.PlayerName}).Info("session opened")
	return &session{conn: conn, m: m, player: resp.Welcome.Player, encoding: resp.Welcome.Encoding, out: out}
}

func errorMsg(code, message string) protocol.ErrorMsg {
	return protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	}
}

// reject reports a handshake failure and closes the connection. Only used
// before the write loop starts.
func (s *Server) reject(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, errorMsg(code, message))
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(closeDeadline))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
