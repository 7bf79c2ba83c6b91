package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
)

// Error taxonomy shared by every layer. Callers match with errors.Is.
var ErrNotAuthorized = errors.New("not authorized")
var ErrForbidden = errors.New("forbidden")
var ErrOutOfBounds = errors.New("coordinate out of bounds")
var ErrNotFound = errors.New("not found")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Role string

const (
	RoleNone        Role = ""
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

func (r Role) Valid() bool { return r == RoleHost || r == RoleParticipant }

// Layer is one z-indexed image plane of a map. Immutable once created.
// Every layer of a map carries the campaign that owns the map.
type Layer struct {
	MapID       string              `json:"map_id"`
	CampaignID  string              `json:"campaign_id"`
	Z           int                 `json:"z"`
	Name        string              `json:"name,omitempty"`
	ImageURL    string              `json:"image_url"`
	ImageWidth  int                 `json:"image_width"`
	ImageHeight int                 `json:"image_height"`
	HexSize     float64             `json:"hex_size"`
	Columns     int                 `json:"hex_columns"`
	Rows        int                 `json:"hex_rows"`
	Orientation hexgrid.Orientation `json:"hex_orientation"`
}

func (l Layer) Grid() hexgrid.Grid {
	return hexgrid.Grid{Size: l.HexSize, Columns: l.Columns, Rows: l.Rows, Orientation: l.Orientation}
}

// Room is the live session synchronized around one campaign map.
type Room struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	MapID      string    `json:"map_id"`
	ActiveZ    int       `json:"active_z"`
	CreatedAt  time.Time `json:"created_at"`
}

// Beacon is the shared marker. Revision increases by exactly one per
// committed change.
type Beacon struct {
	RoomID    string    `json:"room_id"`
	Q         int       `json:"q"`
	R         int       `json:"r"`
	Z         int       `json:"z"`
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b Beacon) Coord() hexgrid.Coord { return hexgrid.Coord{Q: b.Q, R: b.R} }

type State struct {
	Room   Room
	Layers map[int]Layer
	Beacon Beacon
}

func (s State) ActiveLayer() (Layer, bool) {
	l, ok := s.Layers[s.Room.ActiveZ]
	return l, ok
}

type CommandType string

const (
	CmdMoveBeacon  CommandType = "MoveBeacon"
	CmdSwitchLayer CommandType = "SwitchLayer"
)

type Command struct {
	Type     CommandType
	ViewerID string
	Role     Role
	Coord    hexgrid.Coord
	Z        int
	At       time.Time
}

type EventType string

const (
	EvtBeaconMoved  EventType = "BeaconMoved"
	EvtLayerChanged EventType = "LayerChanged"
)

type Event struct {
	Type   EventType
	Beacon Beacon
	Layer  Layer
}

// Apply validates cmd against s and returns the resulting state. s is never
// modified; on error the returned state is s.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if cmd.Role != RoleHost {
		return nil, s, ErrForbidden
	}

	newState := s

	switch cmd.Type {
	case CmdMoveBeacon:
		layer, ok := s.ActiveLayer()
		if !ok {
			return nil, s, fmt.Errorf("active layer %d: %w", s.Room.ActiveZ, ErrNotFound)
		}
		if !layer.Grid().InBounds(cmd.Coord) {
			return nil, s, fmt.Errorf("%v on layer %d: %w", cmd.Coord, layer.Z, ErrOutOfBounds)
		}

		newState.Beacon = nextBeacon(s.Beacon, s.Room.ID, cmd.Coord, layer.Z, cmd.At)
		return []Event{{Type: EvtBeaconMoved, Beacon: newState.Beacon, Layer: layer}}, newState, nil

	case CmdSwitchLayer:
		layer, ok := s.Layers[cmd.Z]
		if !ok {
			return nil, s, fmt.Errorf("layer %d: %w", cmd.Z, ErrNotFound)
		}

		// Keep the beacon's column/row when the new layer has room for it.
		at := s.Beacon.Coord()
		if !layer.Grid().InBounds(at) {
			at = hexgrid.Coord{}
		}
		newState.Room.ActiveZ = layer.Z
		newState.Beacon = nextBeacon(s.Beacon, s.Room.ID, at, layer.Z, cmd.At)
		return []Event{{Type: EvtLayerChanged, Beacon: newState.Beacon, Layer: layer}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func nextBeacon(prev Beacon, roomID string, at hexgrid.Coord, z int, now time.Time) Beacon {
	return Beacon{
		RoomID:    roomID,
		Q:         at.Q,
		R:         at.R,
		Z:         z,
		Revision:  prev.Revision + 1,
		UpdatedAt: now,
	}
}
