// Package fog records which hexes each viewer has seen.
//
// The ledger is append-only: a tile, once revealed for a (map, viewer,
// layer), stays revealed. Reveals for one viewer never show up in another
// viewer's mask, and reveals on one layer never touch another layer.
package fog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
)

var ErrInvalidKey = errors.New("fog: map and viewer are required")

// Key scopes a fog mask.
type Key struct {
	MapID    string
	ViewerID string
	Z        int
}

func (k Key) validate() error {
	if k.MapID == "" || k.ViewerID == "" {
		return ErrInvalidKey
	}
	return nil
}

// TileStore is the persistence contract. InsertTile must be
// insert-if-absent and report whether a row was written.
type TileStore interface {
	InsertTile(ctx context.Context, key Key, c hexgrid.Coord, at time.Time) (bool, error)
	HasTile(ctx context.Context, key Key, c hexgrid.Coord) (bool, error)
	ListTiles(ctx context.Context, key Key) ([]hexgrid.Coord, error)
}

type Ledger struct {
	tiles TileStore
	now   func() time.Time
}

func NewLedger(tiles TileStore) *Ledger {
	return &Ledger{tiles: tiles, now: time.Now}
}

// WithClock returns a copy that stamps reveals using now.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	cp := *l
	cp.now = now
	return &cp
}

// Reveal marks c as seen and reports whether it was new.
func (l *Ledger) Reveal(ctx context.Context, key Key, c hexgrid.Coord) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}
	inserted, err := l.tiles.InsertTile(ctx, key, c, l.now())
	if err != nil {
		return false, fmt.Errorf("reveal %v for %s: %w", c, key.ViewerID, err)
	}
	return inserted, nil
}

// RevealMany reveals every coordinate and returns the ones that were new,
// in input order.
func (l *Ledger) RevealMany(ctx context.Context, key Key, coords []hexgrid.Coord) ([]hexgrid.Coord, error) {
	var fresh []hexgrid.Coord
	for _, c := range coords {
		inserted, err := l.Reveal(ctx, key, c)
		if err != nil {
			return nil, err
		}
		if inserted {
			fresh = append(fresh, c)
		}
	}
	return fresh, nil
}

func (l *Ledger) IsRevealed(ctx context.Context, key Key, c hexgrid.Coord) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}
	return l.tiles.HasTile(ctx, key, c)
}

// AllRevealed returns the viewer's mask for one layer sorted by (Q, R).
func (l *Ledger) AllRevealed(ctx context.Context, key Key) ([]hexgrid.Coord, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	out, err := l.tiles.ListTiles(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list revealed for %s: %w", key.ViewerID, err)
	}
	SortCoords(out)
	return out, nil
}

func SortCoords(cs []hexgrid.Coord) {
	slices.SortFunc(cs, func(a, b hexgrid.Coord) int {
		if a.Q != b.Q {
			return a.Q - b.Q
		}
		return a.R - b.R
	})
}
