package storychain

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/kwento-games/kwento/internal/broadcast"
	"github.com/kwento-games/kwento/internal/evaluator"
)

func newGatewayServer(t *testing.T) (*httptest.Server, *fakeStore) {
	t.Helper()

	config := testConfig()
	store := newFakeStore()
	hub := broadcast.NewHub()
	judge := evaluator.NewJudge(&scriptEvaluator{score: 9}, config.Evaluator)
	coord := New(config, store, hub, judge, NewCatalog())

	router := mux.NewRouter()
	router.Handle("/ws/story/{room}", NewGateway(coord, hub))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv, store
}

func dial(t *testing.T, srv *httptest.Server, roomKey, player string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/story/" + roomKey
	if player != "" {
		url += "?player=" + player
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

type envelope struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	NextPlayer string `json:"next_player"`
	Player     string `json:"player"`
	Text       string `json:"text"`
}

func readEvent(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var ev envelope
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return ev
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected message %q", data)
	}
}

func send(t *testing.T, conn *websocket.Conn, msg interface{}) {
	t.Helper()

	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestGatewayJoinAndStart(t *testing.T) {
	t.Parallel()

	srv, _ := newGatewayServer(t)

	connA := dial(t, srv, "R1", "A")
	if ev := readEvent(t, connA); ev.Type != "players_update" {
		t.Fatalf("first event = %s, want players_update", ev.Type)
	}

	dial(t, srv, "R1", "B")
	if ev := readEvent(t, connA); ev.Type != "players_update" {
		t.Fatalf("after B: event = %s, want players_update", ev.Type)
	}

	dial(t, srv, "R1", "C")

	want := []string{"players_update", "game_start", "new_image", "turn_update"}
	for _, typ := range want {
		ev := readEvent(t, connA)
		if ev.Type != typ {
			t.Fatalf("event = %s, want %s", ev.Type, typ)
		}
		if typ == "turn_update" && ev.NextPlayer != "A" {
			t.Fatalf("next player = %s, want A", ev.NextPlayer)
		}
	}
}

func TestGatewayJoinViaMessage(t *testing.T) {
	t.Parallel()

	srv, store := newGatewayServer(t)

	conn := dial(t, srv, "R1", "")
	send(t, conn, InboundMessage{Type: MsgTypePlayerJoin, Player: "A"})

	if ev := readEvent(t, conn); ev.Type != "players_update" {
		t.Fatalf("event = %s, want players_update", ev.Type)
	}

	room := store.mustFetch(t, "R1")
	if !room.HasPlayer("A") {
		t.Error("A must be on the roster")
	}
}

func TestGatewaySubmitAdvancesTurn(t *testing.T) {
	t.Parallel()

	srv, _ := newGatewayServer(t)

	// Joins run in the handler goroutines; reading A's broadcasts between
	// dials pins the join order.
	connA := dial(t, srv, "R1", "A")
	readEvent(t, connA)
	dial(t, srv, "R1", "B")
	readEvent(t, connA)
	dial(t, srv, "R1", "C")
	for i := 0; i < 4; i++ {
		readEvent(t, connA)
	}

	send(t, connA, InboundMessage{Type: MsgTypeSubmitSentence, Player: "A", Text: "Masaya"})

	story := readEvent(t, connA)
	if story.Type != "story_update" || story.Player != "A" || story.Text != "Masaya" {
		t.Fatalf("event = %+v, want A's story_update", story)
	}

	turn := readEvent(t, connA)
	if turn.Type != "turn_update" || turn.NextPlayer != "B" {
		t.Fatalf("event = %+v, want turn_update for B", turn)
	}
}

func TestGatewayRoomFull(t *testing.T) {
	t.Parallel()

	srv, _ := newGatewayServer(t)

	// Each join is confirmed on its own connection before the next dial so
	// D cannot slip in ahead of a slower handler goroutine.
	connA := dial(t, srv, "R1", "A")
	readEvent(t, connA)
	connB := dial(t, srv, "R1", "B")
	readEvent(t, connB)
	connC := dial(t, srv, "R1", "C")
	readEvent(t, connC)

	connD := dial(t, srv, "R1", "D")
	ev := readEvent(t, connD)
	if ev.Type != "error" || ev.Message != "room is full" {
		t.Fatalf("event = %+v, want a room-is-full error", ev)
	}
}

func TestGatewayOutOfTurnSilentlyDropped(t *testing.T) {
	t.Parallel()

	srv, _ := newGatewayServer(t)

	connA := dial(t, srv, "R1", "A")
	readEvent(t, connA)
	connB := dial(t, srv, "R1", "B")
	readEvent(t, connB)
	dial(t, srv, "R1", "C")

	// C's join, game_start, new_image, turn_update.
	for i := 0; i < 4; i++ {
		readEvent(t, connB)
	}

	send(t, connB, InboundMessage{Type: MsgTypeSubmitSentence, Player: "B", Text: "wala pa"})
	expectSilence(t, connB)
}

func TestGatewayBadInput(t *testing.T) {
	t.Parallel()

	srv, _ := newGatewayServer(t)

	conn := dial(t, srv, "R1", "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, conn); ev.Type != "error" || ev.Message != "malformed message" {
		t.Fatalf("event = %+v, want malformed-message error", ev)
	}

	send(t, conn, InboundMessage{Type: "dance"})
	if ev := readEvent(t, conn); ev.Type != "error" || ev.Message != "unknown message type" {
		t.Fatalf("event = %+v, want unknown-type error", ev)
	}

	send(t, conn, InboundMessage{Type: MsgTypePlayerJoin})
	if ev := readEvent(t, conn); ev.Type != "error" || ev.Message != "missing player name" {
		t.Fatalf("event = %+v, want missing-name error", ev)
	}
}
