package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
	"github.com/DoyleJ11/lol-draft-room/internal/hub"
	"github.com/DoyleJ11/lol-draft-room/internal/lobby"
	"github.com/DoyleJ11/lol-draft-room/internal/store"
	"github.com/DoyleJ11/lol-draft-room/internal/types"
)

func TestToLobbyMsg(t *testing.T) {
	at := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   types.ClientMessage
		want lobby.Msg
		ok   bool
	}{
		{name: "ping", in: types.ClientMessage{Type: types.TypePing}, want: lobby.Ping{}, ok: true},
		{name: "join", in: types.ClientMessage{Type: types.TypeJoin}, want: lobby.FromClient{Cmd: engine.Command{Type: engine.CmdJoin}}, ok: true},
		{
			name: "select keeps champion and client time",
			in:   types.ClientMessage{Type: types.TypeSelect, Side: engine.SideRed, Action: engine.ActionPick, ChampionID: engine.Champion(9), ClientAt: &at},
			want: lobby.FromClient{Cmd: engine.Command{Type: engine.CmdSelect, Side: engine.SideRed, Action: engine.ActionPick, ChampionID: engine.Champion(9), ClientAt: &at}},
			ok:   true,
		},
		{name: "confirm needs an action", in: types.ClientMessage{Type: types.TypeConfirm, Side: engine.SideBlue}, ok: false},
		{name: "ready needs a side", in: types.ClientMessage{Type: types.TypeReady, Side: "green"}, ok: false},
		{name: "rename", in: types.ClientMessage{Type: types.TypeSetTeamName, Side: engine.SideBlue, Name: "T1"}, want: lobby.FromClient{Cmd: engine.Command{Type: engine.CmdSetTeamName, Side: engine.SideBlue, Name: "T1"}}, ok: true},
		{name: "unknown", in: types.ClientMessage{Type: "LockPick"}, ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ToLobbyMsg(tc.in)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	tick := Encode(lobby.Update{Kind: lobby.UpdateTick, Countdown: 12, EventSeq: 4})
	b, err := json.Marshal(tick)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tick","countdown":12,"eventSeq":4}`, string(b))
	assert.Equal(t, types.TypePong, Encode(lobby.Update{Kind: lobby.UpdatePong}).Type)

	st := Encode(lobby.Update{Kind: lobby.UpdateState, State: engine.NewState("ROOM01", "A", "B")})
	require.NotNil(t, st.State)
	assert.Equal(t, "ROOM01", st.State.RoomID)
	assert.Nil(t, st.Countdown)
}

func newServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	srv, mem, _ := newServerWith(t, Options{})
	return srv, mem
}

func newServerWith(t *testing.T, opts Options) (*httptest.Server, *store.Memory, *hub.Hub) {
	t.Helper()
	mem := store.NewMemory()
	h := hub.NewHub(context.Background(), mem, zaptest.NewLogger(t), hub.Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})

	srv := httptest.NewServer(Handler(h, mem, zaptest.NewLogger(t), opts))
	t.Cleanup(srv.Close)
	return srv, mem, h
}

func readMsg(t *testing.T, ctx context.Context, c *websocket.Conn) types.ServerMessage {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeMsg(t *testing.T, ctx context.Context, c *websocket.Conn, msg types.ClientMessage) {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, b))
}

func TestHandler_RejectsUnknownRoom(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "?room=NOPE00")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestHandler_RoundTrip(t *testing.T) {
	srv, mem := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, mem.InsertRoom(ctx, "ROOM01", "Blue", "Red", engine.NewState("ROOM01", "Blue", "Red")))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?room=ROOM01"
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	first := readMsg(t, ctx, c)
	require.Equal(t, types.TypeState, first.Type)
	assert.Equal(t, "Blue", first.State.Teams.Blue.Name)

	writeMsg(t, ctx, c, types.ClientMessage{Type: types.TypePing, RoomID: "ROOM01"})
	assert.Equal(t, types.TypePong, readMsg(t, ctx, c).Type)

	writeMsg(t, ctx, c, types.ClientMessage{Type: "bogus"})
	bad := readMsg(t, ctx, c)
	assert.Equal(t, types.TypeError, bad.Type)
	assert.Equal(t, "unknown type", bad.Error)

	writeMsg(t, ctx, c, types.ClientMessage{Type: types.TypeSetTeamName, RoomID: "ROOM01", Side: engine.SideBlue, Name: "  T1  "})
	renamed := readMsg(t, ctx, c)
	require.Equal(t, types.TypeState, renamed.Type)
	assert.Equal(t, "T1", renamed.State.Teams.Blue.Name)

	require.Eventually(t, func() bool {
		st, err := mem.LoadState(context.Background(), "ROOM01")
		return err == nil && st.Teams.Blue.Name == "T1"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_SilentSpectatorStaysConnected(t *testing.T) {
	srv, mem, _ := newServerWith(t, Options{PingInterval: 20 * time.Millisecond, PongTimeout: 200 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mem.InsertRoom(ctx, "ROOM01", "Blue", "Red", engine.NewState("ROOM01", "Blue", "Red")))

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"?room=ROOM01", nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	msgs := make(chan types.ServerMessage, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			var m types.ServerMessage
			if json.Unmarshal(data, &m) == nil {
				msgs <- m
			}
		}
	}()

	select {
	case first := <-msgs:
		require.Equal(t, types.TypeState, first.Type)
	case err := <-readErr:
		t.Fatalf("read failed: %v", err)
	}

	// Listen only, across many ping rounds.
	select {
	case err := <-readErr:
		t.Fatalf("spectator disconnected: %v", err)
	case <-time.After(500 * time.Millisecond):
	}

	writeMsg(t, ctx, c, types.ClientMessage{Type: types.TypePing})
	for {
		select {
		case m := <-msgs:
			if m.Type == types.TypePong {
				return
			}
		case err := <-readErr:
			t.Fatalf("spectator disconnected: %v", err)
		case <-ctx.Done():
			t.Fatalf("no pong after a silent period")
		}
	}
}

func TestHandler_DropsPeerThatStopsAnsweringPings(t *testing.T) {
	srv, mem, h := newServerWith(t, Options{PingInterval: 20 * time.Millisecond, PongTimeout: 100 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mem.InsertRoom(ctx, "ROOM01", "Blue", "Red", engine.NewState("ROOM01", "Blue", "Red")))

	// Never reading means pings are never answered.
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"?room=ROOM01", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	lb, err := h.Get(ctx, "ROOM01")
	require.NoError(t, err)
	require.NotNil(t, lb)
	require.Eventually(t, func() bool { return lb.Status().Clients == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return lb.Status().Clients == 0 }, 3*time.Second, 10*time.Millisecond)
}
