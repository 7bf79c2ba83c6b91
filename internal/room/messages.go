package room

import (
	"time"

	"github.com/DoyleJ11/hexfog-backend/internal/engine"
	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
	"github.com/DoyleJ11/hexfog-backend/internal/presence"
)

type Msg interface{ isRoomMsg() }

// Join attaches a connection for ViewerID. A second Join for the same
// viewer replaces the older connection.
type Join struct {
	ViewerID string
	ConnID   string
	Outbox   chan Event // where this connection receives room events
	Reply    chan JoinReply
}

func (Join) isRoomMsg() {}

type JoinResult struct {
	Role     engine.Role       `json:"role"`
	Presence presence.Presence `json:"presence"`
	Beacon   engine.Beacon     `json:"beacon"`
	Layer    engine.Layer      `json:"layer"`
	Revealed []hexgrid.Coord   `json:"revealed"`
	Online   []string          `json:"online"`
}

type JoinReply struct {
	Result JoinResult
	Err    error
}

// Leave is an explicit departure. ConnID may be empty to leave regardless
// of which connection is attached.
type Leave struct {
	ViewerID string
	ConnID   string
	Reply    chan error // optional
}

func (Leave) isRoomMsg() {}

// Disconnect is a transport-level drop of ConnID.
type Disconnect struct {
	ViewerID string
	ConnID   string
}

func (Disconnect) isRoomMsg() {}

type MoveBeacon struct {
	ViewerID string
	Coord    hexgrid.Coord
	Reply    chan MoveReply
}

func (MoveBeacon) isRoomMsg() {}

type MoveReply struct {
	Beacon engine.Beacon
	Tiles  []hexgrid.Coord // union of tiles that were new for any online viewer
	Err    error
}

type SwitchLayer struct {
	ViewerID string
	Z        int
	Reply    chan LayerReply
}

func (SwitchLayer) isRoomMsg() {}

type LayerReply struct {
	Beacon engine.Beacon
	Layer  engine.Layer
	Err    error
}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// EvictIfIdle stops the room when nobody is attached and no viewer message
// arrived for at least After. Reply says whether it stopped.
type EvictIfIdle struct {
	After time.Duration
	Reply chan bool
}

func (EvictIfIdle) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	State   engine.State
	Online  []string
	Clients int
	Pending int // viewers inside their disconnect grace period
	Seq     uint64
}

// graceExpired fires when a disconnected viewer did not come back in time.
type graceExpired struct {
	ViewerID string
	Gen      uint64
}

func (graceExpired) isRoomMsg() {}
