package types

// Coord:
//   q: number
//   r: number
//
// Beacon:
//   room_id: string
//   q, r, z: number
//   revision: number   // +1 per committed move or layer switch
//   updated_at: RFC 3339
//
// Layer:
//   map_id: string
//   campaign_id: string   // the campaign that owns the map
//   z: number
//   name: string
//   image_url: string
//   image_width, image_height: number
//   hex_size: number
//   hex_columns, hex_rows: number
//   hex_orientation: "flat" | "pointy"
//
// Presence (GET /rooms/{roomID}/presence):
//   viewer_id, room_id: string
//   online: boolean
//   joined_at: RFC 3339
//   disconnected_at: RFC 3339   // omitted while online

// RevealedResponse is the body of GET /rooms/{roomID}/revealed.
type RevealedResponse struct {
	RoomID string  `json:"room_id"`
	Z      int     `json:"z"`
	Tiles  []Coord `json:"tiles"`
}

type Coord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// CreateRoomRequest is the body of POST /rooms.
type CreateRoomRequest struct {
	CampaignID string `json:"campaign_id"`
	MapID      string `json:"map_id"`
	ActiveZ    int    `json:"active_z"`
}

// CreateLayerRequest is the body of POST /maps/{mapID}/layers. Zero grid
// fields take the server defaults.
type CreateLayerRequest struct {
	CampaignID  string  `json:"campaign_id"`
	Z           int     `json:"z"`
	Name        string  `json:"name,omitempty"`
	ImageURL    string  `json:"image_url"`
	ImageWidth  int     `json:"image_width,omitempty"`
	ImageHeight int     `json:"image_height,omitempty"`
	HexSize     float64 `json:"hex_size,omitempty"`
	Columns     int     `json:"hex_columns,omitempty"`
	Rows        int     `json:"hex_rows,omitempty"`
	Orientation string  `json:"hex_orientation,omitempty"`
}
