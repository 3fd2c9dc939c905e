// Package client connects to a draft server as a participant or spectator
// and turns the room channel into observer messages.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
	"github.com/DoyleJ11/lol-draft-room/internal/observer"
	"github.com/DoyleJ11/lol-draft-room/internal/types"
)

type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
}

// New returns a client for the server at baseURL (http or https).
func New(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
		log:  log.Named("client"),
	}
}

// FetchRoom returns the room's current full state.
func (c *Client) FetchRoom(ctx context.Context, room string) (engine.State, error) {
	var s engine.State
	err := c.getJSON(ctx, "/rooms/"+url.PathEscape(room), &s)
	return s, err
}

func (c *Client) FetchEvents(ctx context.Context, room string) ([]engine.Event, error) {
	var resp types.EventsResponse
	if err := c.getJSON(ctx, "/rooms/"+url.PathEscape(room)+"/events", &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Conn is a live subscription to one room.
type Conn struct {
	room string
	ws   *websocket.Conn
	log  *zap.Logger
}

func (c *Client) Dial(ctx context.Context, room string) (*Conn, error) {
	u, err := url.Parse(c.base + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"room": {room}}.Encode()

	ws, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", room, err)
	}
	return &Conn{room: room, ws: ws, log: c.log.With(zap.String("room", room))}, nil
}

// Send writes a participant message, stamping room and client time.
func (c *Conn) Send(ctx context.Context, msg types.ClientMessage) error {
	msg.RoomID = c.room
	if msg.ClientAt == nil {
		now := time.Now().UTC()
		msg.ClientAt = &now
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.ws.Write(ctx, websocket.MessageText, b)
}

// Run reads server messages into out until the connection ends. out is
// closed on return.
func (c *Conn) Run(ctx context.Context, out chan<- observer.Message) error {
	defer close(out)
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var sm types.ServerMessage
		if err := json.Unmarshal(data, &sm); err != nil {
			c.log.Warn("bad server message", zap.Error(err))
			continue
		}
		msg, ok := Decode(sm)
		if !ok {
			if sm.Type == types.TypeError {
				c.log.Warn("server error", zap.String("error", sm.Error))
			}
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}

// Decode maps a server message onto the observer channel protocol. Pongs
// and errors carry nothing for the observer.
func Decode(sm types.ServerMessage) (observer.Message, bool) {
	switch sm.Type {
	case types.TypeState:
		if sm.State == nil {
			return nil, false
		}
		return observer.StateMessage{State: *sm.State}, true
	case types.TypeTick:
		if sm.Countdown == nil {
			return nil, false
		}
		tick := observer.TickMessage{Countdown: *sm.Countdown}
		if sm.EventSeq != nil {
			tick.EventSeq = *sm.EventSeq
		}
		return tick, true
	default:
		return nil, false
	}
}
