package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/hexfog-backend/internal/engine"
	"github.com/DoyleJ11/hexfog-backend/internal/fog"
	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
)

type memberKey struct {
	campaignID string
	viewerID   string
}

type memData struct {
	tiles   map[fog.Key]map[hexgrid.Coord]time.Time
	beacons map[string]engine.Beacon
	rooms   map[string]engine.Room
	layers  map[string]map[int]engine.Layer
	members map[memberKey]engine.Role
}

// Memory is an in-process Store. A transaction holds the write lock for its
// whole duration and undoes its own writes on failure.
type Memory struct {
	mu *sync.RWMutex
	d  *memData

	tx      bool
	journal []func()
}

func NewMemory() *Memory {
	return &Memory{
		mu: &sync.RWMutex{},
		d: &memData{
			tiles:   make(map[fog.Key]map[hexgrid.Coord]time.Time),
			beacons: make(map[string]engine.Beacon),
			rooms:   make(map[string]engine.Room),
			layers:  make(map[string]map[int]engine.Layer),
			members: make(map[memberKey]engine.Role),
		},
	}
}

func (m *Memory) lock() func() {
	if m.tx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) rlock() func() {
	if m.tx {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

func (m *Memory) record(undo func()) {
	if m.tx {
		m.journal = append(m.journal, undo)
	}
}

func (m *Memory) InTx(ctx context.Context, fn func(tx Store) error) (err error) {
	if m.tx {
		return fn(m)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &Memory{mu: m.mu, d: m.d, tx: true}
	rollback := func() {
		for i := len(tx.journal) - 1; i >= 0; i-- {
			tx.journal[i]()
		}
	}
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		rollback()
		return err
	}
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) InsertTile(_ context.Context, key fog.Key, c hexgrid.Coord, at time.Time) (bool, error) {
	defer m.lock()()

	set, ok := m.d.tiles[key]
	if !ok {
		set = make(map[hexgrid.Coord]time.Time)
		m.d.tiles[key] = set
	}
	if _, exists := set[c]; exists {
		return false, nil
	}
	set[c] = at
	m.record(func() { delete(set, c) })
	return true, nil
}

func (m *Memory) HasTile(_ context.Context, key fog.Key, c hexgrid.Coord) (bool, error) {
	defer m.rlock()()
	_, ok := m.d.tiles[key][c]
	return ok, nil
}

func (m *Memory) ListTiles(_ context.Context, key fog.Key) ([]hexgrid.Coord, error) {
	defer m.rlock()()
	set := m.d.tiles[key]
	out := make([]hexgrid.Coord, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) LoadBeacon(_ context.Context, roomID string) (engine.Beacon, error) {
	defer m.rlock()()
	b, ok := m.d.beacons[roomID]
	if !ok {
		return engine.Beacon{}, fmt.Errorf("beacon for room %s: %w", roomID, engine.ErrNotFound)
	}
	return b, nil
}

func (m *Memory) SaveBeacon(_ context.Context, b engine.Beacon) error {
	defer m.lock()()

	prev, had := m.d.beacons[b.RoomID]
	if b.Revision != prev.Revision+1 {
		return fmt.Errorf("beacon revision %d after %d: %w", b.Revision, prev.Revision, ErrConflict)
	}
	m.d.beacons[b.RoomID] = b
	m.record(func() {
		if had {
			m.d.beacons[b.RoomID] = prev
		} else {
			delete(m.d.beacons, b.RoomID)
		}
	})
	return nil
}

func (m *Memory) CreateRoom(_ context.Context, room engine.Room) error {
	defer m.lock()()
	if _, ok := m.d.rooms[room.ID]; ok {
		return fmt.Errorf("room %s: %w", room.ID, ErrConflict)
	}
	m.d.rooms[room.ID] = room
	m.record(func() { delete(m.d.rooms, room.ID) })
	return nil
}

func (m *Memory) LoadRoom(_ context.Context, roomID string) (engine.Room, error) {
	defer m.rlock()()
	room, ok := m.d.rooms[roomID]
	if !ok {
		return engine.Room{}, fmt.Errorf("room %s: %w", roomID, engine.ErrNotFound)
	}
	return room, nil
}

func (m *Memory) SetActiveLayer(_ context.Context, roomID string, z int) error {
	defer m.lock()()
	room, ok := m.d.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %s: %w", roomID, engine.ErrNotFound)
	}
	prev := room
	room.ActiveZ = z
	m.d.rooms[roomID] = room
	m.record(func() { m.d.rooms[roomID] = prev })
	return nil
}

func (m *Memory) CreateLayer(_ context.Context, layer engine.Layer) error {
	defer m.lock()()
	byZ, ok := m.d.layers[layer.MapID]
	if !ok {
		byZ = make(map[int]engine.Layer)
		m.d.layers[layer.MapID] = byZ
	}
	if _, exists := byZ[layer.Z]; exists {
		return fmt.Errorf("layer %d of map %s: %w", layer.Z, layer.MapID, ErrConflict)
	}
	byZ[layer.Z] = layer
	m.record(func() { delete(byZ, layer.Z) })
	return nil
}

func (m *Memory) ListLayers(_ context.Context, mapID string) ([]engine.Layer, error) {
	defer m.rlock()()
	out := make([]engine.Layer, 0, len(m.d.layers[mapID]))
	for _, l := range m.d.layers[mapID] {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Z < out[j].Z })
	return out, nil
}

func (m *Memory) PutMembership(_ context.Context, campaignID, viewerID string, role engine.Role) error {
	if !role.Valid() {
		return fmt.Errorf("membership role %q is invalid", role)
	}
	defer m.lock()()
	k := memberKey{campaignID: campaignID, viewerID: viewerID}
	prev, had := m.d.members[k]
	m.d.members[k] = role
	m.record(func() {
		if had {
			m.d.members[k] = prev
		} else {
			delete(m.d.members, k)
		}
	})
	return nil
}

func (m *Memory) IsMember(ctx context.Context, campaignID, viewerID string) (bool, error) {
	role, err := m.Role(ctx, campaignID, viewerID)
	return role != engine.RoleNone, err
}

func (m *Memory) Role(_ context.Context, campaignID, viewerID string) (engine.Role, error) {
	defer m.rlock()()
	return m.d.members[memberKey{campaignID: campaignID, viewerID: viewerID}], nil
}
