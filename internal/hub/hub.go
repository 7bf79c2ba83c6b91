package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hexfog-backend/internal/presence"
	"github.com/DoyleJ11/hexfog-backend/internal/room"
	"github.com/DoyleJ11/hexfog-backend/internal/store"
)

type HubMsg interface{ isHubMsg() }

// GetRoom replies with the live room or nil; it never loads.
type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

// EnsureRoom replies with the live room, loading it from the store first
// if needed. Err wraps engine.ErrNotFound for unknown rooms.
type EnsureRoom struct {
	ID    string
	Reply chan EnsureReply
}

type EnsureReply struct {
	Room *room.Room
	Err  error
}

type RemoveRoom struct {
	ID string
}

type ShutdownHub struct{}

type ListRooms struct {
	Reply chan []string
}

func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}
func (ListRooms) isHubMsg()   {}

type Options struct {
	Room room.Options
	// IdleAfter unloads rooms that had nobody attached and no viewer
	// activity for this long. Zero keeps rooms loaded until shutdown.
	IdleAfter time.Duration
	// SweepEvery is how often idle rooms are looked for; it defaults to
	// IdleAfter/4.
	SweepEvery time.Duration
}

type Hub struct {
	inbox    chan HubMsg
	rooms    map[string]*room.Room
	store    store.Store
	presence *presence.Registry
	opts     Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewHub(parent context.Context, st store.Store, reg *presence.Registry, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.IdleAfter > 0 && opts.SweepEvery <= 0 {
		opts.SweepEvery = opts.IdleAfter / 4
	}
	log := opts.Room.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[string]*room.Room),
		store:    st,
		presence: reg,
		opts:     opts,
		log:      log.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) Presence() *presence.Registry { return h.presence }

func (h *Hub) loop() {
	defer close(h.done)

	var sweep <-chan time.Time
	if h.opts.IdleAfter > 0 {
		t := time.NewTicker(h.opts.SweepEvery)
		defer t.Stop()
		sweep = t.C
	}

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-sweep:
			h.evictIdle()

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetRoom:
				msg.Reply <- h.live(msg.ID) // May be nil

			case EnsureRoom:
				if rm := h.live(msg.ID); rm != nil {
					msg.Reply <- EnsureReply{Room: rm}
					break
				}
				initial, err := room.Load(h.ctx, h.store, msg.ID)
				if err != nil {
					msg.Reply <- EnsureReply{Err: err}
					break
				}
				rm := room.New(h.ctx, initial, h.store, h.presence, h.opts.Room)
				h.rooms[msg.ID] = rm
				h.log.Info("room loaded", zap.String("room", msg.ID))
				msg.Reply <- EnsureReply{Room: rm}

			case RemoveRoom:
				if rm := h.rooms[msg.ID]; rm != nil {
					// Wait for the room to finish what it already accepted, so
					// a reload never runs next to it.
					select {
					case rm.Inbox() <- room.Shutdown{}:
					case <-rm.Done():
					}
					<-rm.Done()
					delete(h.rooms, msg.ID)
				}

			case ListRooms:
				ids := make([]string, 0, len(h.rooms))
				for id := range h.rooms {
					ids = append(ids, id)
				}
				msg.Reply <- ids

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// evictIdle asks every room to stop if it has been idle for IdleAfter. The
// room makes the decision so that a join racing the sweep is never lost.
func (h *Hub) evictIdle() {
	for id, rm := range h.rooms {
		reply := make(chan bool, 1)
		select {
		case rm.Inbox() <- room.EvictIfIdle{After: h.opts.IdleAfter, Reply: reply}:
		case <-rm.Done():
			delete(h.rooms, id)
			continue
		}
		select {
		case evicted := <-reply:
			if !evicted {
				continue
			}
			<-rm.Done()
			delete(h.rooms, id)
			h.log.Info("room unloaded", zap.String("room", id))
		case <-rm.Done():
			delete(h.rooms, id)
		}
	}
}

// live returns the room if its goroutine is still running.
func (h *Hub) live(id string) *room.Room {
	rm := h.rooms[id]
	if rm == nil {
		return nil
	}
	select {
	case <-rm.Done():
		delete(h.rooms, id)
		return nil
	default:
		return rm
	}
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		select {
		case rm.Inbox() <- room.Shutdown{}:
		case <-rm.Done():
		}
	}
	for _, rm := range h.rooms {
		<-rm.Done()
	}
	clear(h.rooms)
	h.cancel()
}

// Ensure is the request/response form of EnsureRoom.
func (h *Hub) Ensure(ctx context.Context, id string) (*room.Room, error) {
	reply := make(chan EnsureReply, 1)
	select {
	case h.inbox <- EnsureRoom{ID: id, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, room.ErrClosed
	}
	select {
	case rep := <-reply:
		return rep.Room, rep.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, room.ErrClosed
	}
}
