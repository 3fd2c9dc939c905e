package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
	"github.com/DoyleJ11/lol-draft-room/internal/hub"
	"github.com/DoyleJ11/lol-draft-room/internal/lobby"
	"github.com/DoyleJ11/lol-draft-room/internal/store"
	"github.com/DoyleJ11/lol-draft-room/internal/types"
)

type Options struct {
	// OriginPatterns are passed to websocket.Accept; empty means same origin only.
	OriginPatterns []string

	// PingInterval and PongTimeout detect dead peers. Reads have no
	// deadline since spectators never send.
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	OutboxSize   int
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 20 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 16
	}
	return o
}

// Handler serves /ws?room=ID. Every connection subscribes to the room's
// lobby; participant messages are turned into lobby commands.
func Handler(h *hub.Hub, st store.Store, log *zap.Logger, opts Options) http.HandlerFunc {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		room := r.URL.Query().Get("room")
		if room == "" {
			http.Error(w, "missing room", http.StatusBadRequest)
			return
		}

		if st != nil {
			exists, err := st.RoomExists(r.Context(), room)
			if err != nil {
				log.Error("room lookup failed", zap.String("room", room), zap.Error(err))
				http.Error(w, "room lookup failed", http.StatusInternalServerError)
				return
			}
			if !exists {
				http.Error(w, "room not found", http.StatusNotFound)
				return
			}
		}

		lb, err := h.Ensure(r.Context(), room)
		if err != nil {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		clog := log.With(zap.String("room", room), zap.String("client", clientID))
		out := make(chan lobby.Update, opts.OutboxSize)

		if err := lb.Send(r.Context(), lobby.Join{ClientID: clientID, Outbox: out}); err != nil {
			conn.Close(websocket.StatusGoingAway, "room closed")
			return
		}
		clog.Debug("client joined")
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = lb.Send(ctx, lobby.Leave{ClientID: clientID})
			clog.Debug("client left")
		}()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for u := range out {
				if err := writeJSON(writeCtx, conn, Encode(u), opts.WriteTimeout); err != nil {
					clog.Debug("write failed", zap.Error(err))
					break
				}
			}
			// The lobby dropped us or shut down.
			conn.Close(websocket.StatusGoingAway, "room closed")
		}()

		readCtx, readCancel := context.WithCancel(r.Context())
		defer readCancel()
		go keepAlive(readCtx, conn, opts, clog)

		// Reader loop
		for {
			_, data, err := conn.Read(readCtx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						clog.Debug("read ended", zap.Error(err))
					}
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = writeJSON(r.Context(), conn, types.ErrorMessage("bad json"), opts.WriteTimeout)
				continue
			}
			if cm.RoomID != "" && cm.RoomID != room {
				_ = writeJSON(r.Context(), conn, types.ErrorMessage("wrong room"), opts.WriteTimeout)
				continue
			}

			msg, ok := ToLobbyMsg(cm)
			if !ok {
				_ = writeJSON(r.Context(), conn, types.ErrorMessage("unknown type"), opts.WriteTimeout)
				continue
			}
			if err := lb.Send(r.Context(), msg); err != nil {
				return
			}
		}
	}
}

// ToLobbyMsg maps a participant message onto the lobby protocol.
func ToLobbyMsg(m types.ClientMessage) (lobby.Msg, bool) {
	if m.Type == types.TypePing {
		return lobby.Ping{}, true
	}
	cmd, ok := toEngineCommand(m)
	if !ok {
		return nil, false
	}
	return lobby.FromClient{Cmd: cmd}, true
}

func toEngineCommand(m types.ClientMessage) (engine.Command, bool) {
	cmd := engine.Command{Side: m.Side, Action: m.Action, ClientAt: m.ClientAt}

	switch m.Type {
	case types.TypeJoin:
		cmd.Type = engine.CmdJoin
		return cmd, true
	case types.TypeReady:
		cmd.Type = engine.CmdReady
		return cmd, m.Side.Valid()
	case types.TypeSelect:
		cmd.Type = engine.CmdSelect
		cmd.ChampionID = m.ChampionID
		return cmd, m.Side.Valid() && m.Action.Valid()
	case types.TypeConfirm:
		cmd.Type = engine.CmdConfirm
		return cmd, m.Side.Valid() && m.Action.Valid()
	case types.TypeSetTeamName:
		cmd.Type = engine.CmdSetTeamName
		cmd.Name = m.Name
		return cmd, m.Side.Valid()
	default:
		return engine.Command{}, false
	}
}

// Encode turns a lobby update into its wire form.
func Encode(u lobby.Update) types.ServerMessage {
	switch u.Kind {
	case lobby.UpdateTick:
		return types.TickMessage(u.Countdown, u.EventSeq)
	case lobby.UpdatePong:
		return types.ServerMessage{Type: types.TypePong}
	default:
		return types.StateMessage(u.State)
	}
}

// keepAlive pings the peer until ctx ends and drops the connection when a
// pong does not arrive in time.
func keepAlive(ctx context.Context, conn *websocket.Conn, opts Options, log *zap.Logger) {
	t := time.NewTicker(opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, opts.PongTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					log.Info("peer stopped answering pings", zap.Error(err))
					conn.CloseNow()
				}
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage, timeout time.Duration) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
