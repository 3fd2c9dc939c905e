package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
	"github.com/DoyleJ11/lol-draft-room/internal/httpapi"
	"github.com/DoyleJ11/lol-draft-room/internal/hub"
	"github.com/DoyleJ11/lol-draft-room/internal/observer"
	"github.com/DoyleJ11/lol-draft-room/internal/store"
	"github.com/DoyleJ11/lol-draft-room/internal/types"
)

func TestDecode(t *testing.T) {
	countdown, seq := 9, 3
	s := engine.NewState("ROOM01", "A", "B")

	cases := []struct {
		name string
		in   types.ServerMessage
		want observer.Message
		ok   bool
	}{
		{name: "state", in: types.StateMessage(s), want: observer.StateMessage{State: s}, ok: true},
		{name: "tick", in: types.ServerMessage{Type: types.TypeTick, Countdown: &countdown, EventSeq: &seq}, want: observer.TickMessage{Countdown: 9, EventSeq: 3}, ok: true},
		{name: "tick without countdown", in: types.ServerMessage{Type: types.TypeTick}, ok: false},
		{name: "state without body", in: types.ServerMessage{Type: types.TypeState}, ok: false},
		{name: "pong", in: types.ServerMessage{Type: types.TypePong}, ok: false},
		{name: "error", in: types.ErrorMessage("nope"), ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Decode(tc.in)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestClient_EndToEnd(t *testing.T) {
	log := zaptest.NewLogger(t)
	mem := store.NewMemory()
	h := hub.NewHub(context.Background(), mem, log, hub.Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	srv := httptest.NewServer(httpapi.SetupRoutes(httpapi.Deps{Hub: h, Store: mem, Logger: log}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mem.InsertRoom(ctx, "ROOM01", "Blue", "Red", engine.NewState("ROOM01", "Blue", "Red")))

	c := New(srv.URL, log)
	conn, err := c.Dial(ctx, "ROOM01")
	require.NoError(t, err)
	defer conn.Close()

	local := observer.NewStore()
	updates, unsubscribe := local.Subscribe()
	defer unsubscribe()

	msgs := make(chan observer.Message, 16)
	go func() { _ = conn.Run(ctx, msgs) }()
	go func() { _ = local.Run(ctx, msgs) }()

	require.NoError(t, conn.Send(ctx, types.ClientMessage{Type: types.TypeReady, Side: engine.SideBlue}))
	require.NoError(t, conn.Send(ctx, types.ClientMessage{Type: types.TypeReady, Side: engine.SideRed}))

	deadline := time.After(3 * time.Second)
	for {
		var s engine.State
		select {
		case s = <-updates:
		case <-deadline:
			t.Fatalf("observer never saw both sides ready")
		}
		if s.BothReady() {
			assert.Equal(t, 1, s.EventSeq)
			break
		}
	}

	require.Eventually(t, func() bool {
		events, err := c.FetchEvents(ctx, "ROOM01")
		return err == nil && len(events) == 1 && events[0].ClientAt != nil
	}, 2*time.Second, 20*time.Millisecond)

	live, err := c.FetchRoom(ctx, "ROOM01")
	require.NoError(t, err)
	assert.True(t, live.BothReady())

	_, err = c.FetchRoom(ctx, "NOPE00")
	assert.Error(t, err)
}
