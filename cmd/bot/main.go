package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"skirmish.ai/internal/logging"
	"skirmish.ai/internal/protocol"
)

func main() {
	var (
		wsURL    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		matchID  = flag.String("match", "", "match id to join")
		create   = flag.String("create", "", "create a match on this board first (needs the server http api)")
		name     = flag.String("name", "bot", "player name")
		encoding = flag.String("encoding", protocol.EncodingJSON, "update encoding: json or msgpack")
	)
	flag.Parse()

	log := logging.New().WithField("component", "bot")

	if *create != "" {
		id, err := createMatch(*wsURL, *create)
		if err != nil {
			log.WithError(err).Fatal("create match")
		}
		*matchID = id
		log.WithField("match_id", id).Info("created match")
	}
	if *matchID == "" {
		fmt.Fprintln(os.Stderr, "missing -match or -create")
		os.Exit(2)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*wsURL, nil)
	if err != nil {
		log.WithError(err).Fatal("dial")
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		MatchID:         *matchID,
		Encoding:        *encoding,
	}
	if err := conn.WriteJSON(hello); err != nil {
		log.WithError(err).Fatal("send HELLO")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	b := &bot{player: 0, log: log}
	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			log.WithError(err).Info("connection closed")
			return
		}
		if kind == websocket.BinaryMessage {
			var upd protocol.UpdateMsg
			if err := protocol.Unmarshal(protocol.EncodingMsgpack, msg, &upd); err != nil {
				log.WithError(err).Warn("bad msgpack frame")
				continue
			}
			b.onUpdate(conn, upd.UpdatePacket)
			continue
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.player = w.Player
			log.WithFields(logrus.Fields{"match_id": w.MatchID, "player": w.Player, "tick_ms": w.TickIntervalMs}).Info("WELCOME")
		case protocol.TypeUpdate:
			var upd protocol.UpdateMsg
			if err := json.Unmarshal(msg, &upd); err != nil {
				continue
			}
			b.onUpdate(conn, upd.UpdatePacket)
		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				log.WithFields(logrus.Fields{"code": e.Code, "message": e.Message}).Warn("ERROR")
			}
		}
	}
}

type bot struct {
	player int
	log    logrus.FieldLogger
	ended  bool
}

func (b *bot) onUpdate(conn *websocket.Conn, pkt protocol.UpdatePacket) {
	if pkt.State.Ended() {
		if !b.ended {
			b.ended = true
			b.log.WithFields(logrus.Fields{"state": pkt.State.ID, "tick": pkt.TickNumber, "alive": pkt.Player.StillInGame}).Info("game over")
		}
		return
	}
	for _, cmd := range plan(b.player, pkt) {
		msg := protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, CommandPacket: cmd}
		if err := conn.WriteJSON(msg); err != nil {
			b.log.WithError(err).Warn("send COMMAND")
			return
		}
	}
}

// createMatch posts to /v1/matches on the host of the ws url.
func createMatch(wsURL, boardName string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.Replace(u.Scheme, "ws", "http", 1)
	u.Path = "/v1/matches"
	u.RawQuery = ""
	body, _ := json.Marshal(map[string]any{"board": boardName})
	resp, err := http.Post(u.String(), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create match: http %d", resp.StatusCode)
	}
	var st struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return "", err
	}
	return st.ID, nil
}
