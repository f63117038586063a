package storychain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/kwento-games/kwento/internal/broadcast"
	"github.com/kwento-games/kwento/internal/logging"
)

const localBuffer = 8

func NewGateway(coord *Coordinator, bc broadcast.Broadcaster) *Gateway {
	return &Gateway{
		coord: coord,
		bc:    bc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Gateway is the thin per-connection adapter: it decodes inbound messages,
// invokes the coordinator, and relays the room's broadcasts back to its own
// connection. It performs no game logic.
type Gateway struct {
	coord    *Coordinator
	bc       broadcast.Broadcaster
	upgrader websocket.Upgrader
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx).Named("storychain.gateway")

	roomKey := mux.Vars(r)["room"]
	if roomKey == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("room %s: upgrade: %v", roomKey, err)
		return
	}

	sub := g.bc.Subscribe(roomKey)
	local := make(chan []byte, localBuffer)

	go relay(conn, sub.C, local)

	defer func() {
		// No roster removal on disconnect: the player stays a turn-holder
		// and the turn timer is the recovery path.
		g.bc.Unsubscribe(roomKey, sub.ID)
		close(local)
	}()

	logger.Infof("room %s: connection %s opened", roomKey, sub.ID)

	// The lobby passes the display name on the connection request; clients
	// may also join with an explicit player_join message.
	if player := r.URL.Query().Get("player"); player != "" {
		g.join(ctx, roomKey, player, local)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Infof("room %s: connection %s closed: %v", roomKey, sub.ID, err)
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendLocal(local, newErrorEvent("malformed message"))
			continue
		}

		switch msg.Type {
		case MsgTypePlayerJoin:
			if msg.Player == "" {
				sendLocal(local, newErrorEvent("missing player name"))
				continue
			}
			g.join(ctx, roomKey, msg.Player, local)

		case MsgTypeSubmitSentence:
			if err := g.coord.Submit(ctx, roomKey, msg.Player, msg.Text); err != nil {
				// Out-of-turn submissions are dropped without a reply to
				// tolerate client-side races.
				if errors.Is(err, NotYourTurnErr) {
					continue
				}
				logger.Errorf("room %s: submit: %v", roomKey, err)
				sendLocal(local, newErrorEvent("internal error"))
			}

		default:
			sendLocal(local, newErrorEvent("unknown message type"))
		}
	}
}

func (g *Gateway) join(ctx context.Context, roomKey, player string, local chan<- []byte) {
	logger := logging.FromContext(ctx).Named("storychain.gateway")

	if err := g.coord.Join(ctx, roomKey, player); err != nil {
		if errors.Is(err, RoomFullErr) {
			sendLocal(local, newErrorEvent("room is full"))
			return
		}
		logger.Errorf("room %s: join %s: %v", roomKey, player, err)
		sendLocal(local, newErrorEvent("internal error"))
	}
}

// relay writes room broadcasts and per-connection events to the websocket
// until both sources are closed.
func relay(conn *websocket.Conn, subCh <-chan []byte, localCh <-chan []byte) {
	defer conn.Close()

	for subCh != nil || localCh != nil {
		select {
		case payload, ok := <-subCh:
			if !ok {
				subCh = nil
				continue
			}
			if conn.WriteMessage(websocket.TextMessage, payload) != nil {
				return
			}
		case payload, ok := <-localCh:
			if !ok {
				localCh = nil
				continue
			}
			if conn.WriteMessage(websocket.TextMessage, payload) != nil {
				return
			}
		}
	}
}

func sendLocal(local chan<- []byte, ev interface{}) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}

	select {
	case local <- payload:
	default:
	}
}
