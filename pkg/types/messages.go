// Package types documents the websocket protocol spoken on GET /ws and
// exports its message names and error codes for clients written in Go.
package types

// Client -> Server
//
// join: {}
//   Attach this connection to the room named in ?room=. Replied with joined.
//
// leave: {}
//   Detach explicitly. Leaving twice is a no-op.
//
// move-beacon (host only):
//   q: number   // required, 0 included
//   r: number   // required
//
// switch-layer (host only):
//   z: number   // required

// The server pings every WS_PING_INTERVAL. Clients must keep reading so the
// pong goes out; a missed pong closes the connection.

// Server -> Client
//
// joined (reply to join):
//   room, viewer, role: "host" | "participant"
//   beacon: Beacon
//   layer: Layer
//   tiles: Coord[]   // the caller's fog mask on the active layer
//   online: string[]
//
// participant-joined / participant-left:
//   seq, room, viewer
//
// tiles-revealed:
//   seq, room, beacon
//   tiles: Coord[]   // only tiles that were new for some online viewer; may be []
//
// layer-changed:
//   seq, room, beacon, layer
//
// fog-mask (this connection only, after layer-changed):
//   layer, tiles
//
// error (reply to the offending message only):
//   code: see Code* constants
//   error: string

const (
	MsgJoin        = "join"
	MsgLeave       = "leave"
	MsgMoveBeacon  = "move-beacon"
	MsgSwitchLayer = "switch-layer"

	MsgJoined = "joined"
	MsgError  = "error"
)

const (
	CodeBadRequest    = "bad_request"
	CodeNotAuthorized = "not_authorized"
	CodeForbidden     = "forbidden"
	CodeOutOfBounds   = "out_of_bounds"
	CodeNotFound      = "not_found"
	CodeRateLimited   = "rate_limited"
	CodeConflict      = "conflict" // HTTP only
	CodeInternal      = "internal"
)
