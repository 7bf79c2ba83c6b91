package engine

import (
	"fmt"

	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
)

// Layer creation defaults, matching what hosts get when they upload a map
// without specifying a grid.
const (
	DefaultHexSize     = 6
	DefaultColumns     = 20
	DefaultRows        = 20
	DefaultImageWidth  = 1000
	DefaultImageHeight = 1000
)

func NewState(room Room, layers []Layer, beacon Beacon) State {
	s := State{
		Room:   room,
		Layers: make(map[int]Layer, len(layers)),
		Beacon: beacon,
	}
	for _, l := range layers {
		s.Layers[l.Z] = l
	}
	if s.Beacon.RoomID == "" {
		// No beacon stored yet: sit at the origin of the active layer.
		s.Beacon = Beacon{RoomID: room.ID, Z: room.ActiveZ}
	}
	return s
}

// WithDefaults fills zero-valued grid fields.
func (l Layer) WithDefaults() Layer {
	if l.HexSize <= 0 {
		l.HexSize = DefaultHexSize
	}
	if l.Columns <= 0 {
		l.Columns = DefaultColumns
	}
	if l.Rows <= 0 {
		l.Rows = DefaultRows
	}
	if l.ImageWidth <= 0 {
		l.ImageWidth = DefaultImageWidth
	}
	if l.ImageHeight <= 0 {
		l.ImageHeight = DefaultImageHeight
	}
	if l.Orientation == "" {
		l.Orientation = hexgrid.FlatTop
	}
	return l
}

func (l Layer) Validate() error {
	if l.MapID == "" {
		return fmt.Errorf("layer: map id is required")
	}
	if l.ImageURL == "" {
		return fmt.Errorf("layer: image url is required")
	}
	if _, err := hexgrid.ParseOrientation(string(l.Orientation)); err != nil {
		return fmt.Errorf("layer: %w", err)
	}
	return nil
}

// FindEvent returns the first event of eventType.
func FindEvent(events []Event, eventType EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}
