package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
	"github.com/DoyleJ11/lol-draft-room/internal/hub"
	"github.com/DoyleJ11/lol-draft-room/internal/lobby"
	"github.com/DoyleJ11/lol-draft-room/internal/store"
	"github.com/DoyleJ11/lol-draft-room/internal/types"
)

// maxCreateAttempts bounds retries on room id collisions.
const maxCreateAttempts = 5

// codeGenerator is swapped in tests to force collisions.
var codeGenerator = GenerateCode

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func CreateRoom(h *hub.Hub, st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		blue := teamName(req.BlueName, "Blue")
		red := teamName(req.RedName, "Red")

		var (
			code  string
			state engine.State
		)
		for attempt := 1; ; attempt++ {
			c, err := codeGenerator()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to generate code")
				return
			}
			state = engine.NewState(c, blue, red)
			err = st.InsertRoom(r.Context(), c, blue, red, state)
			if err == nil {
				code = c
				break
			}
			if !errors.Is(err, store.ErrRoomExists) {
				log.Error("insert room failed", zap.String("room", c), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to create room")
				return
			}
			log.Info("collision on code, regenerating", zap.String("room", c), zap.Int("attempt", attempt))
			if attempt >= maxCreateAttempts {
				writeError(w, http.StatusConflict, "could not allocate a room id")
				return
			}
		}

		if _, err := h.Create(r.Context(), code, state); err != nil {
			// The row exists; the lobby is created again on first join.
			log.Warn("lobby not started", zap.String("room", code), zap.Error(err))
		}
		log.Info("room created", zap.String("room", code))

		writeJSON(w, http.StatusCreated, types.CreateRoomResponse{RoomID: code, State: state})
	}
}

// GetRoom returns the freshest known state: the running lobby's when there
// is one, the stored document otherwise.
func GetRoom(h *hub.Hub, st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if lb, err := h.Get(r.Context(), id); err == nil && lb != nil {
			if s, ok := liveState(r.Context(), lb); ok {
				writeJSON(w, http.StatusOK, s)
				return
			}
		}

		s, err := st.LoadState(r.Context(), id)
		switch {
		case errors.Is(err, store.ErrRoomNotFound):
			writeError(w, http.StatusNotFound, "room not found")
		case err != nil:
			log.Error("load room failed", zap.String("room", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load room")
		default:
			writeJSON(w, http.StatusOK, s)
		}
	}
}

func GetEvents(st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		events, err := st.FetchEvents(r.Context(), id)
		switch {
		case errors.Is(err, store.ErrRoomNotFound):
			writeError(w, http.StatusNotFound, "room not found")
		case err != nil:
			log.Error("fetch events failed", zap.String("room", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to fetch events")
		default:
			if events == nil {
				events = []engine.Event{}
			}
			writeJSON(w, http.StatusOK, types.EventsResponse{RoomID: id, Events: events})
		}
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HealthzDB pings the store and echoes a credential-free summary of it.
func HealthzDB(st store.Store, info map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error(), "store": info})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "store": info})
	}
}

func liveState(ctx context.Context, lb *lobby.Lobby) (engine.State, bool) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	reply := make(chan lobby.View, 1)
	if err := lb.Send(ctx, lobby.GetState{Reply: reply}); err != nil {
		return engine.State{}, false
	}
	select {
	case v := <-reply:
		return v.State, v.Loaded
	case <-lb.Done():
		return engine.State{}, false
	case <-ctx.Done():
		return engine.State{}, false
	}
}

func teamName(name, fallback string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorMessage(msg))
}
