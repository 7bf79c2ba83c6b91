// Package room runs one goroutine per live session. Every mutation of a
// room (join, leave, disconnect, beacon move, layer switch) is processed by
// that goroutine in inbox order, including the store I/O it performs, so
// beacon revisions and reveal fan-out are totally ordered per room.
package room

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hexfog-backend/internal/engine"
	"github.com/DoyleJ11/hexfog-backend/internal/fog"
	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
	"github.com/DoyleJ11/hexfog-backend/internal/presence"
	"github.com/DoyleJ11/hexfog-backend/internal/store"
)

var ErrClosed = errors.New("room closed")

type Options struct {
	Policy engine.RevealPolicy
	// DisconnectGrace delays the offline transition after a transport drop.
	// Zero means a disconnect is an immediate leave.
	DisconnectGrace time.Duration
	InboxSize       int
	Logger          *zap.Logger
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Policy == nil {
		o.Policy = engine.RadiusPolicy{Radius: engine.DefaultRevealRadius}
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 64
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type client struct {
	connID string
	outbox chan Event
}

// snapshot is what readers outside the room goroutine may see.
type snapshot struct {
	room   engine.Room
	beacon engine.Beacon
	layers map[int]engine.Layer
}

type Room struct {
	id       string
	inbox    chan Msg
	state    engine.State
	store    store.Store
	presence *presence.Registry
	opts     Options
	log      *zap.Logger

	clients map[string]client
	pending map[string]uint64
	gen     uint64
	seq     uint64
	// lastActive is when the room last handled a viewer message.
	lastActive time.Time

	view atomic.Pointer[snapshot]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, initial engine.State, st store.Store, reg *presence.Registry, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	opts = opts.withDefaults()

	r := &Room{
		id:         initial.Room.ID,
		inbox:      make(chan Msg, opts.InboxSize),
		state:      initial,
		store:      st,
		presence:   reg,
		opts:       opts,
		log:        opts.Logger.With(zap.String("room", initial.Room.ID)),
		clients:    make(map[string]client),
		pending:    make(map[string]uint64),
		lastActive: opts.Now(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	r.publishView()

	go r.loop()
	return r
}

// Load builds the initial state of roomID from the store.
func Load(ctx context.Context, st store.Store, roomID string) (engine.State, error) {
	rm, err := st.LoadRoom(ctx, roomID)
	if err != nil {
		return engine.State{}, err
	}
	layers, err := st.ListLayers(ctx, rm.MapID)
	if err != nil {
		return engine.State{}, fmt.Errorf("layers of map %s: %w", rm.MapID, err)
	}
	beacon, err := st.LoadBeacon(ctx, roomID)
	if err != nil && !errors.Is(err, engine.ErrNotFound) {
		return engine.State{}, err
	}
	return engine.NewState(rm, layers, beacon), nil
}

func (r *Room) ID() string { return r.id }

// Expose the inbox so tests or the ws layer can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room goroutine has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

// Beacon returns the last committed beacon without waiting on the room.
func (r *Room) Beacon() engine.Beacon { return r.view.Load().beacon }

// Info returns the last committed room record and active layer.
func (r *Room) Info() (engine.Room, engine.Layer, bool) {
	v := r.view.Load()
	l, ok := v.layers[v.room.ActiveZ]
	return v.room, l, ok
}

func (r *Room) publishView() {
	r.view.Store(&snapshot{room: r.state.Room, beacon: r.state.Beacon, layers: r.state.Layers})
}

func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch m.(type) {
			case GetState, EvictIfIdle:
			default:
				r.lastActive = r.opts.Now()
			}

			switch msg := m.(type) {
			case Join:
				res, err := r.handleJoin(msg)
				msg.Reply <- JoinReply{Result: res, Err: err}

			case Leave:
				r.handleLeave(msg.ViewerID, msg.ConnID)
				if msg.Reply != nil {
					msg.Reply <- nil
				}

			case Disconnect:
				r.handleDisconnect(msg.ViewerID, msg.ConnID)

			case graceExpired:
				if gen, ok := r.pending[msg.ViewerID]; ok && gen == msg.Gen {
					delete(r.pending, msg.ViewerID)
					r.markOffline(msg.ViewerID)
				}

			case MoveBeacon:
				beacon, tiles, err := r.handleMove(msg)
				msg.Reply <- MoveReply{Beacon: beacon, Tiles: tiles, Err: err}

			case SwitchLayer:
				beacon, layer, err := r.handleSwitch(msg)
				msg.Reply <- LayerReply{Beacon: beacon, Layer: layer, Err: err}

			case GetState:
				msg.Reply <- View{
					State:   r.state,
					Online:  r.presence.ListOnline(r.id),
					Clients: len(r.clients),
					Pending: len(r.pending),
					Seq:     r.seq,
				}

			case EvictIfIdle:
				idle := len(r.clients) == 0 && len(r.pending) == 0 &&
					r.opts.Now().Sub(r.lastActive) >= msg.After
				msg.Reply <- idle
				if idle {
					r.shutdown()
					return
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	for id, c := range r.clients {
		close(c.outbox) // Tell client no more events
		delete(r.clients, id)
	}
	// Nobody is attached to a stopped room.
	for _, viewerID := range r.presence.ListOnline(r.id) {
		r.presence.Leave(r.id, viewerID)
	}
	r.cancel()
}

func (r *Room) handleJoin(msg Join) (JoinResult, error) {
	layer, ok := r.state.ActiveLayer()
	if !ok {
		return JoinResult{}, fmt.Errorf("active layer %d: %w", r.state.Room.ActiveZ, engine.ErrNotFound)
	}

	// Nothing is mutated until the reads and the authorization succeed.
	key := fog.Key{MapID: r.state.Room.MapID, ViewerID: msg.ViewerID, Z: layer.Z}
	revealed, err := fog.NewLedger(r.store).AllRevealed(r.ctx, key)
	if err != nil {
		r.log.Error("load fog mask", zap.String("viewer", msg.ViewerID), zap.Error(err))
		return JoinResult{}, err
	}

	p, role, from, err := r.presence.Join(r.ctx, r.state.Room, msg.ViewerID)
	if err != nil {
		if !errors.Is(err, engine.ErrNotAuthorized) {
			r.log.Error("join", zap.String("viewer", msg.ViewerID), zap.Error(err))
		}
		return JoinResult{}, err
	}
	delete(r.pending, msg.ViewerID)

	if old, ok := r.clients[msg.ViewerID]; ok && old.connID != msg.ConnID {
		close(old.outbox)
	}
	r.clients[msg.ViewerID] = client{connID: msg.ConnID, outbox: msg.Outbox}

	if from != presence.StatusOnline {
		r.broadcast(Event{Name: EvtParticipantJoined, ViewerID: msg.ViewerID}, msg.ViewerID)
	}
	r.log.Info("viewer joined", zap.String("viewer", msg.ViewerID), zap.String("role", string(role)))

	return JoinResult{
		Role:     role,
		Presence: p,
		Beacon:   r.state.Beacon,
		Layer:    layer,
		Revealed: revealed,
		Online:   r.presence.ListOnline(r.id),
	}, nil
}

func (r *Room) handleLeave(viewerID, connID string) {
	if c, ok := r.clients[viewerID]; ok {
		if connID != "" && c.connID != connID {
			// A newer connection replaced this one.
			return
		}
		close(c.outbox)
		delete(r.clients, viewerID)
	}
	delete(r.pending, viewerID)
	r.markOffline(viewerID)
}

func (r *Room) handleDisconnect(viewerID, connID string) {
	c, ok := r.clients[viewerID]
	if !ok || c.connID != connID {
		return
	}
	close(c.outbox)
	delete(r.clients, viewerID)
	r.afterDrop(viewerID)
}

// afterDrop applies the disconnect policy to a viewer whose connection is
// already gone.
func (r *Room) afterDrop(viewerID string) {
	if r.opts.DisconnectGrace <= 0 {
		r.markOffline(viewerID)
		return
	}
	r.gen++
	gen := r.gen
	r.pending[viewerID] = gen
	time.AfterFunc(r.opts.DisconnectGrace, func() {
		select {
		case r.inbox <- graceExpired{ViewerID: viewerID, Gen: gen}:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) markOffline(viewerID string) {
	if _, changed := r.presence.Leave(r.id, viewerID); !changed {
		return
	}
	r.broadcast(Event{Name: EvtParticipantLeft, ViewerID: viewerID}, "")
	r.log.Info("viewer left", zap.String("viewer", viewerID))
}

// roleOf maps a missing membership to no role so that privilege checks
// report Forbidden rather than NotAuthorized.
func (r *Room) roleOf(viewerID string) (engine.Role, error) {
	role, err := r.presence.Role(r.ctx, r.state.Room.CampaignID, viewerID)
	if errors.Is(err, engine.ErrNotAuthorized) {
		return engine.RoleNone, nil
	}
	return role, err
}

func (r *Room) handleMove(msg MoveBeacon) (engine.Beacon, []hexgrid.Coord, error) {
	role, err := r.roleOf(msg.ViewerID)
	if err != nil {
		r.log.Error("resolve role", zap.String("viewer", msg.ViewerID), zap.Error(err))
		return engine.Beacon{}, nil, err
	}

	now := r.opts.Now()
	events, next, err := engine.Apply(r.state, engine.Command{
		Type:     engine.CmdMoveBeacon,
		ViewerID: msg.ViewerID,
		Role:     role,
		Coord:    msg.Coord,
		At:       now,
	})
	if err != nil {
		return engine.Beacon{}, nil, err
	}

	moved, _ := engine.FindEvent(events, engine.EvtBeaconMoved)
	layer := moved.Layer
	visible := r.opts.Policy.Visible(layer.Grid(), moved.Beacon.Coord())
	online := r.presence.ListOnline(r.id)

	var fresh []hexgrid.Coord
	// Once the ledger write starts it runs to completion.
	commitCtx := context.WithoutCancel(r.ctx)
	err = r.store.InTx(commitCtx, func(tx store.Store) error {
		if err := tx.SaveBeacon(commitCtx, moved.Beacon); err != nil {
			return err
		}
		ledger := fog.NewLedger(tx).WithClock(func() time.Time { return now })
		seen := make(map[hexgrid.Coord]bool)
		for _, viewerID := range online {
			key := fog.Key{MapID: next.Room.MapID, ViewerID: viewerID, Z: layer.Z}
			inserted, err := ledger.RevealMany(commitCtx, key, visible)
			if err != nil {
				return err
			}
			for _, c := range inserted {
				if !seen[c] {
					seen[c] = true
					fresh = append(fresh, c)
				}
			}
		}
		return nil
	})
	if err != nil {
		r.log.Error("commit beacon move", zap.String("viewer", msg.ViewerID), zap.Stringer("to", msg.Coord), zap.Error(err))
		r.resyncBeacon(err)
		return engine.Beacon{}, nil, fmt.Errorf("commit beacon move: %w", err)
	}

	r.state = next
	r.publishView()
	fog.SortCoords(fresh)

	beacon := moved.Beacon
	r.broadcast(Event{Name: EvtTilesRevealed, Beacon: &beacon, Tiles: fresh}, "")
	r.log.Debug("beacon moved",
		zap.Stringer("to", msg.Coord),
		zap.Int64("revision", beacon.Revision),
		zap.Int("revealed", len(fresh)),
		zap.Int("viewers", len(online)))

	return beacon, fresh, nil
}

func (r *Room) handleSwitch(msg SwitchLayer) (engine.Beacon, engine.Layer, error) {
	role, err := r.roleOf(msg.ViewerID)
	if err != nil {
		r.log.Error("resolve role", zap.String("viewer", msg.ViewerID), zap.Error(err))
		return engine.Beacon{}, engine.Layer{}, err
	}

	state := r.state
	if _, ok := state.Layers[msg.Z]; !ok && role == engine.RoleHost {
		// The layer may have been created after this room was loaded.
		layers, err := r.store.ListLayers(r.ctx, state.Room.MapID)
		if err != nil {
			return engine.Beacon{}, engine.Layer{}, fmt.Errorf("reload layers: %w", err)
		}
		state = engine.NewState(state.Room, layers, state.Beacon)
	}

	events, next, err := engine.Apply(state, engine.Command{
		Type:     engine.CmdSwitchLayer,
		ViewerID: msg.ViewerID,
		Role:     role,
		Z:        msg.Z,
		At:       r.opts.Now(),
	})
	if err != nil {
		return engine.Beacon{}, engine.Layer{}, err
	}
	changed, _ := engine.FindEvent(events, engine.EvtLayerChanged)
	layer := changed.Layer

	commitCtx := context.WithoutCancel(r.ctx)
	err = r.store.InTx(commitCtx, func(tx store.Store) error {
		if err := tx.SetActiveLayer(commitCtx, next.Room.ID, next.Room.ActiveZ); err != nil {
			return err
		}
		return tx.SaveBeacon(commitCtx, next.Beacon)
	})
	if err != nil {
		r.log.Error("commit layer switch", zap.Int("z", msg.Z), zap.Error(err))
		r.resyncBeacon(err)
		return engine.Beacon{}, engine.Layer{}, fmt.Errorf("commit layer switch: %w", err)
	}

	r.state = next
	r.publishView()

	beacon := next.Beacon
	r.broadcast(Event{Name: EvtLayerChanged, Beacon: &beacon, Layer: &layer}, "")
	r.sendMasks(layer)
	r.log.Info("layer switched", zap.Int("z", layer.Z), zap.Int64("revision", beacon.Revision))

	return beacon, layer, nil
}

// resyncBeacon reloads the stored beacon after a lost compare-and-set so
// the next command builds on the committed revision.
func (r *Room) resyncBeacon(err error) {
	if !errors.Is(err, store.ErrConflict) {
		return
	}
	b, lerr := r.store.LoadBeacon(r.ctx, r.id)
	if lerr != nil {
		r.log.Warn("reload beacon", zap.Error(lerr))
		return
	}
	r.state.Beacon = b
	r.publishView()
	r.log.Warn("beacon resynced from store", zap.Int64("revision", b.Revision))
}

// sendMasks gives every attached connection its own mask for layer.
func (r *Room) sendMasks(layer engine.Layer) {
	ledger := fog.NewLedger(r.store)
	var dropped []string
	for viewerID, c := range r.clients {
		key := fog.Key{MapID: r.state.Room.MapID, ViewerID: viewerID, Z: layer.Z}
		tiles, err := ledger.AllRevealed(r.ctx, key)
		if err != nil {
			r.log.Warn("load fog mask", zap.String("viewer", viewerID), zap.Error(err))
			continue
		}
		l := layer
		select {
		case c.outbox <- Event{Name: EvtFogMask, RoomID: r.id, ViewerID: viewerID, Layer: &l, Tiles: tiles}:
		default:
			dropped = append(dropped, viewerID)
		}
	}
	for _, id := range dropped {
		r.dropClient(id)
	}
}

func (r *Room) broadcast(evt Event, except string) {
	r.seq++
	evt.Seq = r.seq
	evt.RoomID = r.id

	var dropped []string
	for id, c := range r.clients {
		if id == except {
			continue
		}
		select {
		case c.outbox <- evt:
			//ok
		default:
			// Client is slow/full - drop them.
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		r.dropClient(id)
	}
}

func (r *Room) dropClient(viewerID string) {
	c, ok := r.clients[viewerID]
	if !ok {
		return
	}
	r.log.Warn("dropping slow client", zap.String("viewer", viewerID))
	close(c.outbox)
	delete(r.clients, viewerID)
	r.afterDrop(viewerID)
}
