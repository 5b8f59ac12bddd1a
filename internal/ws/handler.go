// Package ws bridges one websocket to one room member: a reader loop forwards client
// frames into the room, and a writer goroutine drains the member's outbox.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/DoyleJ11/elpres-backend/internal/hub"
	"github.com/DoyleJ11/elpres-backend/internal/room"
	"github.com/DoyleJ11/elpres-backend/pkg/types"
)

var errRoomNotFound = errors.New("Room not found")
var errMissingID = errors.New("Missing id")

const (
	writeTimeout = 3 * time.Second
	readTimeout  = 30 * time.Second
)

type Options struct {
	Logger *zap.Logger
	// OriginPatterns are extra hosts allowed to open sockets cross-origin.
	OriginPatterns []string
	OutboxSize     int
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 16
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			log.Debug("websocket accept", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		name, err := room.NormalizeName(r.URL.Query().Get("room"))
		if err != nil {
			refuse(r.Context(), conn, err)
			return
		}
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			refuse(r.Context(), conn, errMissingID)
			return
		}

		rm, err := h.Get(r.Context(), name)
		if err != nil || rm == nil {
			refuse(r.Context(), conn, errRoomNotFound)
			return
		}

		out := make(chan types.ServerMessage, opts.OutboxSize)
		connID, err := rm.Connect(r.Context(), id, out)
		if errors.Is(err, room.ErrClosed) {
			err = errRoomNotFound
		}
		if err != nil {
			refuse(r.Context(), conn, err)
			return
		}
		log := log.With(zap.String("room", name), zap.String("player", id))
		defer rm.Send(room.Disconnect{PlayerID: id, Conn: connID})

		// Writer goroutine. The room closes out when it drops this socket.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err := wsjson.Write(ctx, conn, msg)
				cancel()
				if err != nil {
					log.Debug("websocket write", zap.Error(err))
					break
				}
			}
			conn.Close(websocket.StatusNormalClosure, "bye")
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("websocket read", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				log.Debug("bad client frame", zap.Error(err))
				continue
			}
			if !rm.Send(room.FromClient{PlayerID: id, Conn: connID, Msg: cm}) {
				return
			}
		}
	}
}

// refuse answers with a single error frame and closes the socket.
func refuse(ctx context.Context, conn *websocket.Conn, err error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = wsjson.Write(ctx, conn, types.ServerMessage{Type: types.MsgError, Message: err.Error()})
	conn.Close(websocket.StatusPolicyViolation, err.Error())
}
