// Package store persists rooms, layers, memberships, beacon positions and
// revealed tiles. Memory backs tests and single-process dev runs; Gorm backs
// postgres and sqlite deployments.
package store

import (
	"context"
	"errors"

	"github.com/DoyleJ11/hexfog-backend/internal/engine"
	"github.com/DoyleJ11/hexfog-backend/internal/fog"
)

// ErrConflict reports a lost compare-and-set, e.g. a beacon revision that
// does not follow the stored one, or a duplicate layer/room.
var ErrConflict = errors.New("store: conflict")

type Store interface {
	fog.TileStore

	// LoadBeacon returns engine.ErrNotFound when the room has no beacon yet.
	LoadBeacon(ctx context.Context, roomID string) (engine.Beacon, error)
	// SaveBeacon writes b only if b.Revision is exactly one past the stored
	// revision (or 1 when nothing is stored); otherwise ErrConflict.
	SaveBeacon(ctx context.Context, b engine.Beacon) error

	CreateRoom(ctx context.Context, room engine.Room) error
	LoadRoom(ctx context.Context, roomID string) (engine.Room, error)
	SetActiveLayer(ctx context.Context, roomID string, z int) error

	CreateLayer(ctx context.Context, layer engine.Layer) error
	ListLayers(ctx context.Context, mapID string) ([]engine.Layer, error)

	PutMembership(ctx context.Context, campaignID, viewerID string, role engine.Role) error
	IsMember(ctx context.Context, campaignID, viewerID string) (bool, error)
	Role(ctx context.Context, campaignID, viewerID string) (engine.Role, error)

	// InTx runs fn against a transactional view. Nothing fn wrote survives
	// if fn returns an error.
	InTx(ctx context.Context, fn func(tx Store) error) error

	Close() error
}
