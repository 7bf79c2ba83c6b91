package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/DoyleJ11/hexfog-backend/internal/auth"
	"github.com/DoyleJ11/hexfog-backend/internal/engine"
	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
	"github.com/DoyleJ11/hexfog-backend/internal/hub"
	"github.com/DoyleJ11/hexfog-backend/internal/room"
	"github.com/DoyleJ11/hexfog-backend/internal/types"
	ptypes "github.com/DoyleJ11/hexfog-backend/pkg/types"
)

type Config struct {
	// The server pings every PingInterval; a pong missing for PingTimeout
	// closes the connection. Viewers that only watch stay attached.
	PingInterval time.Duration
	PingTimeout  time.Duration
	WriteTimeout time.Duration
	OutboxSize   int
	Rate         float64 // inbound messages per second
	Burst        int
	// OriginPatterns loosens the same-origin check, e.g. "localhost:*" in dev.
	OriginPatterns []string
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = 16
	}
	if c.Rate <= 0 {
		c.Rate = 20
	}
	if c.Burst <= 0 {
		c.Burst = 40
	}
	return c
}

func Handler(h *hub.Hub, v *auth.Verifier, cfg Config, log *zap.Logger) http.HandlerFunc {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("room")
		if roomID == "" {
			http.Error(w, "missing room", http.StatusBadRequest)
			return
		}

		viewerID, err := v.Verify(auth.TokenFromRequest(r))
		if err != nil {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		rm, err := h.Ensure(r.Context(), roomID)
		if err != nil {
			if errors.Is(err, engine.ErrNotFound) {
				http.Error(w, "room not found", http.StatusNotFound)
				return
			}
			log.Error("ensure room", zap.String("room", roomID), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer wsConn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c := &conn{
			ws:       wsConn,
			hub:      h,
			rm:       rm,
			viewerID: viewerID,
			connID:   uuid.NewString(),
			cfg:      cfg,
			log:      log.With(zap.String("room", roomID), zap.String("viewer", viewerID)),
			send:     make(chan types.ServerMessage, cfg.OutboxSize),
			limiter:  rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
			ctx:      ctx,
			cancel:   cancel,
		}
		defer c.disconnect()

		go c.writeLoop()
		go c.pingLoop()
		c.readLoop()
	}
}

// conn is one websocket attached to one room. Only the reader goroutine
// touches joined and current.
type conn struct {
	ws       *websocket.Conn
	hub      *hub.Hub
	rm       *room.Room
	viewerID string
	connID   string
	cfg      Config
	log      *zap.Logger
	send     chan types.ServerMessage
	limiter  *rate.Limiter

	joined  bool
	current *atomic.Bool // set when this connection asked to leave

	ctx    context.Context
	cancel context.CancelFunc
}

func (c *conn) readLoop() {
	for {
		// Liveness is the ping loop's job; a quiet viewer is not a dead one.
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if c.ctx.Err() == nil {
					c.log.Debug("read", zap.Error(err))
				}
			}
			return
		}

		if !c.limiter.Allow() {
			c.reply(errorMessage(ptypes.CodeRateLimited, "slow down"))
			continue
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			c.reply(errorMessage(ptypes.CodeBadRequest, "bad json"))
			continue
		}
		c.handle(cm)
	}
}

func (c *conn) handle(cm types.ClientMessage) {
	switch cm.Type {
	case ptypes.MsgJoin:
		c.join()

	case ptypes.MsgLeave:
		if !c.joined {
			return
		}
		c.current.Store(true)
		c.joined = false
		if err := c.rm.LeaveViewer(c.ctx, c.viewerID, c.connID); err != nil {
			c.replyErr(err)
		}

	case ptypes.MsgMoveBeacon:
		if cm.Q == nil || cm.R == nil {
			c.reply(errorMessage(ptypes.CodeBadRequest, "move-beacon needs q and r"))
			return
		}
		err := c.reloadIfClosed(func() error {
			_, err := c.rm.Move(c.ctx, c.viewerID, hexgrid.Coord{Q: *cm.Q, R: *cm.R})
			return err
		})
		if err != nil {
			c.replyErr(err)
		}

	case ptypes.MsgSwitchLayer:
		if cm.Z == nil {
			c.reply(errorMessage(ptypes.CodeBadRequest, "switch-layer needs z"))
			return
		}
		err := c.reloadIfClosed(func() error {
			_, err := c.rm.Switch(c.ctx, c.viewerID, *cm.Z)
			return err
		})
		if err != nil {
			c.replyErr(err)
		}

	default:
		c.reply(errorMessage(ptypes.CodeBadRequest, "unknown type"))
	}
}

func (c *conn) join() {
	if c.joined {
		c.reply(errorMessage(ptypes.CodeBadRequest, "already joined"))
		return
	}

	outbox := make(chan room.Event, c.cfg.OutboxSize)
	var res room.JoinResult
	err := c.reloadIfClosed(func() (err error) {
		res, err = c.rm.JoinViewer(c.ctx, c.viewerID, c.connID, outbox)
		return err
	})
	if err != nil {
		c.replyErr(err)
		return
	}
	c.joined = true
	c.current = new(atomic.Bool)

	beacon, layer := res.Beacon, res.Layer
	c.reply(types.ServerMessage{
		Type:   ptypes.MsgJoined,
		Room:   c.rm.ID(),
		Viewer: c.viewerID,
		Role:   res.Role,
		Beacon: &beacon,
		Layer:  &layer,
		Tiles:  nonNil(res.Revealed),
		Online: res.Online,
	})

	// Started after the reply so that joined is always the first message
	// of a session.
	go c.forward(outbox, c.current)
}

// forward copies room events onto the socket. The room closes outbox when
// this connection leaves, is replaced, is too slow, or the room stops; in
// every case but an explicit leave the socket is closed too.
func (c *conn) forward(outbox <-chan room.Event, left *atomic.Bool) {
	for {
		select {
		case evt, ok := <-outbox:
			if !ok {
				if !left.Load() {
					c.log.Info("detached by room")
					c.cancel()
				}
				return
			}
			select {
			case c.send <- toServerMessage(evt):
			case <-c.ctx.Done():
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// reloadIfClosed runs fn once more against a freshly loaded room when the
// room was unloaded as idle after this socket opened. A joined connection
// keeps its room alive, so for it ErrClosed means shutdown.
func (c *conn) reloadIfClosed(fn func() error) error {
	err := fn()
	if c.joined || !errors.Is(err, room.ErrClosed) {
		return err
	}
	rm, err := c.hub.Ensure(c.ctx, c.rm.ID())
	if err != nil {
		return err
	}
	c.rm = rm
	return fn()
}

func (c *conn) pingLoop() {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			ctx, cancel := context.WithTimeout(c.ctx, c.cfg.PingTimeout)
			err := c.ws.Ping(ctx)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					c.log.Info("ping failed", zap.Error(err))
				}
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, c.cfg.WriteTimeout)
			err := wsjson.Write(ctx, c.ws, msg)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *conn) reply(msg types.ServerMessage) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	}
}

func (c *conn) replyErr(err error) {
	code := ErrorCode(err)
	if code == ptypes.CodeInternal {
		c.log.Error("request failed", zap.Error(err))
		c.reply(errorMessage(code, "internal error"))
		return
	}
	c.reply(errorMessage(code, err.Error()))
}

// disconnect runs when the socket goes away for any reason.
func (c *conn) disconnect() {
	c.cancel()
	if !c.joined {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.rm.DisconnectViewer(ctx, c.viewerID, c.connID); err != nil && !errors.Is(err, room.ErrClosed) {
		c.log.Warn("disconnect", zap.Error(err))
	}
}

func toServerMessage(evt room.Event) types.ServerMessage {
	tiles := evt.Tiles
	switch evt.Name {
	case room.EvtTilesRevealed, room.EvtFogMask:
		tiles = nonNil(tiles)
	}
	return types.ServerMessage{
		Type:   string(evt.Name),
		Seq:    evt.Seq,
		Room:   evt.RoomID,
		Viewer: evt.ViewerID,
		Beacon: evt.Beacon,
		Layer:  evt.Layer,
		Tiles:  tiles,
	}
}

// nonNil makes an empty tile set encode as [] rather than be left out.
func nonNil(cs []hexgrid.Coord) []hexgrid.Coord {
	if cs == nil {
		return []hexgrid.Coord{}
	}
	return cs
}

func errorMessage(code, text string) types.ServerMessage {
	return types.ServerMessage{Type: ptypes.MsgError, Code: code, Error: text}
}

// ErrorCode maps domain errors onto the protocol's error codes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotAuthorized):
		return ptypes.CodeNotAuthorized
	case errors.Is(err, engine.ErrForbidden):
		return ptypes.CodeForbidden
	case errors.Is(err, engine.ErrOutOfBounds):
		return ptypes.CodeOutOfBounds
	case errors.Is(err, engine.ErrNotFound):
		return ptypes.CodeNotFound
	case errors.Is(err, engine.ErrUnsupportedCommand):
		return ptypes.CodeBadRequest
	default:
		return ptypes.CodeInternal
	}
}
