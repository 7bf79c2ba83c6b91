package types

import (
	"github.com/DoyleJ11/hexfog-backend/internal/engine"
	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
)

// ClientMessage coordinates are pointers so that a missing field is told
// apart from zero.
type ClientMessage struct {
	Type string `json:"type"` // "join" | "leave" | "move-beacon" | "switch-layer"
	Q    *int   `json:"q,omitempty"`
	R    *int   `json:"r,omitempty"`
	Z    *int   `json:"z,omitempty"`
}

type ServerMessage struct {
	Type   string          `json:"type"`
	Seq    uint64          `json:"seq,omitempty"`
	Room   string          `json:"room,omitempty"`
	Viewer string          `json:"viewer,omitempty"`
	Role   engine.Role     `json:"role,omitempty"`
	Beacon *engine.Beacon  `json:"beacon,omitempty"`
	Layer  *engine.Layer   `json:"layer,omitempty"`
	Tiles  []hexgrid.Coord `json:"tiles,omitzero"` // [] on tiles-revealed, fog-mask and joined
	Online []string        `json:"online,omitempty"`
	Code   string          `json:"code,omitempty"`
	Error  string          `json:"error,omitempty"`
}
