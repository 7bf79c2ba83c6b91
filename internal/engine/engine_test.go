package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
)

func newTestState() State {
	room := Room{ID: "room-1", CampaignID: "camp-1", MapID: "map-1", ActiveZ: 0}
	layers := []Layer{
		{MapID: "map-1", Z: 0, HexSize: 10, Columns: 20, Rows: 20, Orientation: hexgrid.FlatTop},
		{MapID: "map-1", Z: -1, HexSize: 10, Columns: 4, Rows: 4, Orientation: hexgrid.PointyTop},
	}
	return NewState(room, layers, Beacon{})
}

func TestApply_RejectsNonHost(t *testing.T) {
	cases := []struct {
		name string
		role Role
	}{
		{name: "participant", role: RoleParticipant},
		{name: "no role", role: RoleNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestState()
			cmd := Command{Type: CmdMoveBeacon, ViewerID: "p1", Role: tc.role, Coord: hexgrid.Coord{Q: 1, R: 1}}
			_, got, err := Apply(s, cmd)
			if !errors.Is(err, ErrForbidden) {
				t.Fatalf("want ErrForbidden, got %v", err)
			}
			if got.Beacon != s.Beacon {
				t.Fatalf("beacon changed on rejected move: %+v", got.Beacon)
			}
		})
	}
}

func TestApply_MoveBeacon(t *testing.T) {
	cases := []struct {
		name    string
		coord   hexgrid.Coord
		wantErr error
	}{
		{name: "in bounds", coord: hexgrid.Coord{Q: 5, R: 5}},
		{name: "origin", coord: hexgrid.Coord{Q: 0, R: 0}},
		{name: "column past edge", coord: hexgrid.Coord{Q: 20, R: 0}, wantErr: ErrOutOfBounds},
		{name: "negative row", coord: hexgrid.Coord{Q: 3, R: -1}, wantErr: ErrOutOfBounds},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestState()
			now := time.Unix(1700000000, 0)
			events, got, err := Apply(s, Command{Type: CmdMoveBeacon, Role: RoleHost, Coord: tc.coord, At: now})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				if got.Beacon.Revision != s.Beacon.Revision {
					t.Fatalf("revision moved on rejected command")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got.Beacon.Revision != s.Beacon.Revision+1 {
				t.Fatalf("want revision %d, got %d", s.Beacon.Revision+1, got.Beacon.Revision)
			}
			if got.Beacon.Coord() != tc.coord || got.Beacon.Z != 0 {
				t.Fatalf("beacon at %v z=%d", got.Beacon.Coord(), got.Beacon.Z)
			}
			if !got.Beacon.UpdatedAt.Equal(now) {
				t.Fatalf("updated at %v", got.Beacon.UpdatedAt)
			}
			moved, ok := FindEvent(events, EvtBeaconMoved)
			if !ok {
				t.Fatalf("expected EvtBeaconMoved")
			}
			if moved.Beacon != got.Beacon {
				t.Fatalf("event beacon %+v, state beacon %+v", moved.Beacon, got.Beacon)
			}
		})
	}
}

func TestApply_MoveBeacon_MissingActiveLayer(t *testing.T) {
	s := newTestState()
	s.Room.ActiveZ = 7
	_, _, err := Apply(s, Command{Type: CmdMoveBeacon, Role: RoleHost})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestApply_SwitchLayer(t *testing.T) {
	s := newTestState()
	_, s, err := Apply(s, Command{Type: CmdMoveBeacon, Role: RoleHost, Coord: hexgrid.Coord{Q: 2, R: 3}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	events, got, err := Apply(s, Command{Type: CmdSwitchLayer, Role: RoleHost, Z: -1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Room.ActiveZ != -1 || got.Beacon.Z != -1 {
		t.Fatalf("want active layer -1, got room=%d beacon=%d", got.Room.ActiveZ, got.Beacon.Z)
	}
	if got.Beacon.Coord() != (hexgrid.Coord{Q: 2, R: 3}) {
		t.Fatalf("beacon should keep in-bounds position, got %v", got.Beacon.Coord())
	}
	if got.Beacon.Revision != 2 {
		t.Fatalf("want revision 2, got %d", got.Beacon.Revision)
	}
	changed, ok := FindEvent(events, EvtLayerChanged)
	if !ok {
		t.Fatalf("expected EvtLayerChanged")
	}
	if changed.Layer.Z != -1 {
		t.Fatalf("event layer %d", changed.Layer.Z)
	}
	if _, ok := FindEvent(events, EvtBeaconMoved); ok {
		t.Fatalf("layer switch should not report a move")
	}
	if s.Room.ActiveZ != 0 {
		t.Fatalf("input state mutated")
	}
}

func TestApply_SwitchLayer_RehomesOutOfBoundsBeacon(t *testing.T) {
	s := newTestState()
	_, s, _ = Apply(s, Command{Type: CmdMoveBeacon, Role: RoleHost, Coord: hexgrid.Coord{Q: 15, R: 15}})

	_, got, err := Apply(s, Command{Type: CmdSwitchLayer, Role: RoleHost, Z: -1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Beacon.Coord() != (hexgrid.Coord{}) {
		t.Fatalf("want beacon at origin, got %v", got.Beacon.Coord())
	}
}

func TestApply_SwitchLayer_UnknownLayer(t *testing.T) {
	_, _, err := Apply(newTestState(), Command{Type: CmdSwitchLayer, Role: RoleHost, Z: 3})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestApply_UnsupportedCommand(t *testing.T) {
	_, _, err := Apply(newTestState(), Command{Type: "Teleport", Role: RoleHost})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("want ErrUnsupportedCommand, got %v", err)
	}
}

func TestRadiusPolicy_ClipsToGrid(t *testing.T) {
	grid := hexgrid.Grid{Size: 10, Columns: 20, Rows: 20}
	p := RadiusPolicy{Radius: 1}

	if got := p.Visible(grid, hexgrid.Coord{Q: 5, R: 5}); len(got) != 7 {
		t.Fatalf("interior hex: want 7 tiles, got %d", len(got))
	}

	// (0,0) keeps itself, (1,0) and (0,1); (-1,0),(0,-1),(1,-1),(-1,1) fall off.
	if got := p.Visible(grid, hexgrid.Coord{}); len(got) != 3 {
		t.Fatalf("corner hex: want 3 tiles, got %v", got)
	}
}

func TestRadiusPolicy_HugeRadiusIsBoundedByGrid(t *testing.T) {
	grid := hexgrid.Grid{Size: 10, Columns: 3, Rows: 3}
	p := RadiusPolicy{Radius: 1 << 30}

	if got := p.Visible(grid, hexgrid.Coord{Q: 1, R: 1}); len(got) != 9 {
		t.Fatalf("want the whole 3x3 grid, got %d tiles", len(got))
	}
}

func TestLayerWithDefaults(t *testing.T) {
	l := Layer{MapID: "m", ImageURL: "https://example.test/a.png"}.WithDefaults()
	if l.HexSize != DefaultHexSize || l.Columns != DefaultColumns || l.Rows != DefaultRows {
		t.Fatalf("grid defaults not applied: %+v", l)
	}
	if l.Orientation != hexgrid.FlatTop {
		t.Fatalf("want flat orientation, got %q", l.Orientation)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := (Layer{MapID: "m"}).Validate(); err == nil {
		t.Fatalf("expected missing image url to fail")
	}
}
