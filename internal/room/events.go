package room

import (
	"github.com/DoyleJ11/hexfog-backend/internal/engine"
	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
)

type EventName string

const (
	EvtParticipantJoined EventName = "participant-joined"
	EvtParticipantLeft   EventName = "participant-left"
	EvtTilesRevealed     EventName = "tiles-revealed"
	EvtLayerChanged      EventName = "layer-changed"
	// EvtFogMask is sent to one connection only, after a layer switch.
	EvtFogMask EventName = "fog-mask"
)

// Event is what a connection's outbox receives. Seq is the room-wide
// order of broadcast events; unicast events carry Seq 0.
type Event struct {
	Name     EventName
	Seq      uint64
	RoomID   string
	ViewerID string
	Beacon   *engine.Beacon
	Layer    *engine.Layer
	Tiles    []hexgrid.Coord
}
