// Package seed loads a yaml fixture of memberships, layers and rooms into a
// store, so a memory-backed dev server has something to join.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DoyleJ11/hexfog-backend/internal/engine"
	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
	"github.com/DoyleJ11/hexfog-backend/internal/store"
)

type Fixture struct {
	Memberships []MembershipSpec `yaml:"memberships"`
	Layers      []LayerSpec      `yaml:"layers"`
	Rooms       []RoomSpec       `yaml:"rooms"`
}

type MembershipSpec struct {
	Campaign string `yaml:"campaign"`
	Viewer   string `yaml:"viewer"`
	Role     string `yaml:"role"`
}

type LayerSpec struct {
	Map         string  `yaml:"map"`
	Campaign    string  `yaml:"campaign"`
	Z           int     `yaml:"z"`
	Name        string  `yaml:"name"`
	Image       string  `yaml:"image"`
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	HexSize     float64 `yaml:"hex_size"`
	Columns     int     `yaml:"columns"`
	Rows        int     `yaml:"rows"`
	Orientation string  `yaml:"orientation"`
}

type RoomSpec struct {
	ID       string `yaml:"id"`
	Campaign string `yaml:"campaign"`
	Map      string `yaml:"map"`
	ActiveZ  int    `yaml:"active_z"`
}

func Load(path string) (Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Fixture{}, fmt.Errorf("seed: %w", err)
	}
	if err := f.Validate(); err != nil {
		return Fixture{}, fmt.Errorf("seed: %w", err)
	}
	return f, nil
}

func (f Fixture) Validate() error {
	for i, m := range f.Memberships {
		if m.Campaign == "" || m.Viewer == "" {
			return fmt.Errorf("memberships[%d]: campaign and viewer are required", i)
		}
		if !engine.Role(m.Role).Valid() {
			return fmt.Errorf("memberships[%d]: role %q", i, m.Role)
		}
	}
	owners := make(map[string]string)
	for i, l := range f.Layers {
		if l.Campaign == "" {
			return fmt.Errorf("layers[%d]: campaign is required", i)
		}
		if err := l.layer().Validate(); err != nil {
			return fmt.Errorf("layers[%d]: %w", i, err)
		}
		if owner, ok := owners[l.Map]; ok && owner != l.Campaign {
			return fmt.Errorf("layers[%d]: map %s belongs to campaign %s", i, l.Map, owner)
		}
		owners[l.Map] = l.Campaign
	}
	for i, r := range f.Rooms {
		if r.ID == "" || r.Campaign == "" || r.Map == "" {
			return fmt.Errorf("rooms[%d]: id, campaign and map are required", i)
		}
		if owner, ok := owners[r.Map]; ok && owner != r.Campaign {
			return fmt.Errorf("rooms[%d]: map %s belongs to campaign %s", i, r.Map, owner)
		}
	}
	return nil
}

func (l LayerSpec) layer() engine.Layer {
	return engine.Layer{
		MapID:       l.Map,
		CampaignID:  l.Campaign,
		Z:           l.Z,
		Name:        l.Name,
		ImageURL:    l.Image,
		ImageWidth:  l.Width,
		ImageHeight: l.Height,
		HexSize:     l.HexSize,
		Columns:     l.Columns,
		Rows:        l.Rows,
		Orientation: hexgrid.Orientation(l.Orientation),
	}.WithDefaults()
}

// Apply writes the fixture in one transaction. Layers and rooms that
// already exist are left alone, so applying twice is harmless.
func (f Fixture) Apply(ctx context.Context, st store.Store) error {
	return st.InTx(ctx, func(tx store.Store) error {
		for _, m := range f.Memberships {
			if err := tx.PutMembership(ctx, m.Campaign, m.Viewer, engine.Role(m.Role)); err != nil {
				return err
			}
		}
		for _, l := range f.Layers {
			if err := tx.CreateLayer(ctx, l.layer()); err != nil && !errors.Is(err, store.ErrConflict) {
				return err
			}
		}
		for _, r := range f.Rooms {
			rm := engine.Room{ID: r.ID, CampaignID: r.Campaign, MapID: r.Map, ActiveZ: r.ActiveZ}
			if err := tx.CreateRoom(ctx, rm); err != nil && !errors.Is(err, store.ErrConflict) {
				return err
			}
		}
		return nil
	})
}
