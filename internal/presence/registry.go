// Package presence tracks which viewers are watching which room.
//
// Per (room, viewer) the state machine is absent -> online <-> offline.
// Offline entries are kept until the membership itself goes away (Forget);
// they are what lets a returning viewer keep their JoinedAt.
package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/hexfog-backend/internal/engine"
)

type Status string

const (
	StatusAbsent  Status = "absent"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

type Presence struct {
	ViewerID       string    `json:"viewer_id"`
	RoomID         string    `json:"room_id"`
	Online         bool      `json:"online"`
	JoinedAt       time.Time `json:"joined_at"`
	DisconnectedAt time.Time `json:"disconnected_at,omitzero"`
}

func (p Presence) Status() Status {
	if p.ViewerID == "" {
		return StatusAbsent
	}
	if p.Online {
		return StatusOnline
	}
	return StatusOffline
}

// Membership is the authorization collaborator.
type Membership interface {
	IsMember(ctx context.Context, campaignID, viewerID string) (bool, error)
	Role(ctx context.Context, campaignID, viewerID string) (engine.Role, error)
}

type Registry struct {
	members Membership
	now     func() time.Time

	mu    sync.RWMutex
	rooms map[string]map[string]Presence
}

func NewRegistry(members Membership) *Registry {
	return &Registry{
		members: members,
		now:     time.Now,
		rooms:   make(map[string]map[string]Presence),
	}
}

// Role resolves the viewer's role in the campaign; a viewer with no
// standing membership gets ErrNotAuthorized.
func (r *Registry) Role(ctx context.Context, campaignID, viewerID string) (engine.Role, error) {
	role, err := r.members.Role(ctx, campaignID, viewerID)
	if err != nil {
		return engine.RoleNone, fmt.Errorf("role of %s in %s: %w", viewerID, campaignID, err)
	}
	if role == engine.RoleHost {
		return role, nil
	}
	ok, err := r.members.IsMember(ctx, campaignID, viewerID)
	if err != nil {
		return engine.RoleNone, fmt.Errorf("membership of %s in %s: %w", viewerID, campaignID, err)
	}
	if !ok {
		return engine.RoleNone, fmt.Errorf("%s in campaign %s: %w", viewerID, campaignID, engine.ErrNotAuthorized)
	}
	return engine.RoleParticipant, nil
}

// Join authorizes viewerID for room and marks them online. It returns the
// new presence, the viewer's role, and the status they came from.
func (r *Registry) Join(ctx context.Context, room engine.Room, viewerID string) (Presence, engine.Role, Status, error) {
	role, err := r.Role(ctx, room.CampaignID, viewerID)
	if err != nil {
		return Presence{}, engine.RoleNone, StatusAbsent, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	viewers, ok := r.rooms[room.ID]
	if !ok {
		viewers = make(map[string]Presence)
		r.rooms[room.ID] = viewers
	}
	prev := viewers[viewerID]
	p := prev
	if p.Status() == StatusAbsent {
		p = Presence{ViewerID: viewerID, RoomID: room.ID, JoinedAt: r.now()}
	}
	p.Online = true
	p.DisconnectedAt = time.Time{}
	viewers[viewerID] = p
	return p, role, prev.Status(), nil
}

// Leave marks the viewer offline. It reports false when the viewer was not
// online, which callers treat as a no-op.
func (r *Registry) Leave(roomID, viewerID string) (Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.rooms[roomID][viewerID]
	if !ok || !p.Online {
		return p, false
	}
	p.Online = false
	p.DisconnectedAt = r.now()
	r.rooms[roomID][viewerID] = p
	return p, true
}

// Forget drops the viewer back to absent, e.g. after membership removal.
func (r *Registry) Forget(roomID, viewerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms[roomID], viewerID)
	if len(r.rooms[roomID]) == 0 {
		delete(r.rooms, roomID)
	}
}

func (r *Registry) Get(roomID, viewerID string) (Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.rooms[roomID][viewerID]
	return p, ok
}

// ListOnline returns the online viewer IDs of room, sorted.
func (r *Registry) ListOnline(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms[roomID]))
	for id, p := range r.rooms[roomID] {
		if p.Online {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// List returns every known presence in room, online or not, by viewer ID.
func (r *Registry) List(roomID string) []Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Presence, 0, len(r.rooms[roomID]))
	for _, p := range r.rooms[roomID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ViewerID < out[j].ViewerID })
	return out
}
